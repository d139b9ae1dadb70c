package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
)

type fakeRepository struct {
	mappings      []models.BillingPlanMapping
	accounts      map[string]*models.BillingAccount // provider:providerAccountID
	subscriptions map[string]*models.BillingSubscription
	settings      map[uint]*models.UserSettings
	webhookEvents map[string]*models.BillingWebhookEvent
	nextID        uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		accounts:      map[string]*models.BillingAccount{},
		subscriptions: map[string]*models.BillingSubscription{},
		settings:      map[uint]*models.UserSettings{},
		webhookEvents: map[string]*models.BillingWebhookEvent{},
	}
}

func (r *fakeRepository) id() uint {
	r.nextID++
	return r.nextID
}

func (r *fakeRepository) FindActivePlanMapping(provider, ref, interval string) (*models.BillingPlanMapping, error) {
	for i := range r.mappings {
		m := &r.mappings[i]
		if m.Provider == provider && m.ProviderPlanRef == ref && m.BillingInterval == interval && m.IsActive {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) FindActiveMappingForPlan(provider, internalPlan string) (*models.BillingPlanMapping, error) {
	for i := range r.mappings {
		m := &r.mappings[i]
		if m.Provider == provider && m.InternalPlan == internalPlan && m.IsActive {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) UpsertBillingAccount(account *models.BillingAccount) error {
	for _, a := range r.accounts {
		if a.UserID == account.UserID && a.Provider == account.Provider {
			delete(r.accounts, a.Provider+":"+a.ProviderAccountID)
			a.ProviderAccountID = account.ProviderAccountID
			if account.Email != "" {
				a.Email = account.Email
			}
			r.accounts[a.Provider+":"+a.ProviderAccountID] = a
			*account = *a
			return nil
		}
	}
	account.ID = r.id()
	cp := *account
	r.accounts[cp.Provider+":"+cp.ProviderAccountID] = &cp
	return nil
}

func (r *fakeRepository) GetBillingAccountByProviderAccountID(provider, providerAccountID string) (*models.BillingAccount, error) {
	if a, ok := r.accounts[provider+":"+providerAccountID]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetBillingAccountByUserID(userID uint, provider string) (*models.BillingAccount, error) {
	for _, a := range r.accounts {
		if a.UserID == userID && a.Provider == provider {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	key := sub.Provider + ":" + sub.ProviderSubscriptionID
	if existing, ok := r.subscriptions[key]; ok {
		sub.ID = existing.ID
	} else {
		sub.ID = r.id()
	}
	cp := *sub
	r.subscriptions[key] = &cp
	return nil
}

func (r *fakeRepository) ListSubscriptionsByUser(userID uint) ([]models.BillingSubscription, error) {
	var out []models.BillingSubscription
	for _, s := range r.subscriptions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepository) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	if us, ok := r.settings[userID]; ok {
		return us, nil
	}
	us := &models.UserSettings{ID: r.id(), UserID: userID, Plan: "free"}
	r.settings[userID] = us
	return us, nil
}

func (r *fakeRepository) SaveUserSettings(us *models.UserSettings) error {
	r.settings[us.UserID] = us
	return nil
}

func (r *fakeRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	key := event.Provider + ":" + event.ProviderEventID
	if existing, ok := r.webhookEvents[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	event.ID = r.id()
	cp := *event
	r.webhookEvents[key] = &cp
	out := cp
	return true, &out, nil
}

func (r *fakeRepository) MarkWebhookProcessed(id uint, processingError string) error {
	for _, e := range r.webhookEvents {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeGateway struct {
	subscriptions    map[string]*GatewaySubscription
	customerUserIDs  map[string]string
	createdCustomers int
	canceledSubs     []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		subscriptions:   map[string]*GatewaySubscription{},
		customerUserIDs: map[string]string{},
	}
}

func (g *fakeGateway) Provider() string { return models.BillingProviderStripe }

func (g *fakeGateway) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	if signature != "valid" {
		return nil, ErrInvalidSignature
	}
	return &Event{ID: "evt_test", Kind: EventIgnored, Payload: payload}, nil
}

func (g *fakeGateway) GetSubscription(_ context.Context, id string) (*GatewaySubscription, error) {
	if s, ok := g.subscriptions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, errors.New("no such subscription")
}

func (g *fakeGateway) GetCustomerUserID(_ context.Context, customerID string) (string, error) {
	return g.customerUserIDs[customerID], nil
}

func (g *fakeGateway) CreateCustomer(_ context.Context, userID uint, _ string) (string, error) {
	g.createdCustomers++
	return fmt.Sprintf("cus_%d_%d", userID, g.createdCustomers), nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, customerID, priceID string, userID uint) (string, error) {
	return "https://checkout.test/" + customerID + "/" + priceID, nil
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, customerID string) (string, error) {
	return "https://portal.test/" + customerID, nil
}

func (g *fakeGateway) CancelAtPeriodEnd(_ context.Context, subscriptionID string) error {
	g.canceledSubs = append(g.canceledSubs, subscriptionID)
	return nil
}

func newTestService() (*Service, *fakeRepository, *fakeGateway) {
	repo := newFakeRepository()
	gw := newFakeGateway()
	repo.mappings = []models.BillingPlanMapping{
		{ID: 1, Provider: "stripe", ProviderPlanRef: "price_pro_month", InternalPlan: "pro", BillingInterval: "month", IsActive: true},
		{ID: 2, Provider: "stripe", ProviderPlanRef: "price_pro_year", InternalPlan: "pro", BillingInterval: "year", IsActive: true},
	}
	return NewService(repo, gw), repo, gw
}

func proSubscription(id, customerID string) *GatewaySubscription {
	start := time.Now().Add(-24 * time.Hour).UTC()
	end := start.Add(30 * 24 * time.Hour)
	return &GatewaySubscription{
		ID:                 id,
		CustomerID:         customerID,
		PriceID:            "price_pro_month",
		Interval:           "month",
		Status:             "active",
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		RawJSON:            `{"id":"` + id + `"}`,
	}
}

func TestSyncSubscriptionUpgradesPlan(t *testing.T) {
	svc, repo, _ := newTestService()

	sub, plan, err := svc.SyncSubscription(context.Background(), NormalizedSubscription{
		UserID:                 7,
		Provider:               "stripe",
		ProviderSubscriptionID: "sub_1",
		ProviderPlanRef:        "price_pro_month",
		BillingInterval:        "month",
		Status:                 "active",
	})
	if err != nil {
		t.Fatalf("SyncSubscription: %v", err)
	}
	if sub.InternalPlan != "pro" {
		t.Fatalf("expected internal plan pro, got %q", sub.InternalPlan)
	}
	if plan != "pro" {
		t.Fatalf("expected effective plan pro, got %q", plan)
	}
	if repo.settings[7].Plan != "pro" {
		t.Fatalf("expected user settings plan pro, got %q", repo.settings[7].Plan)
	}
}

func TestSyncSubscriptionUnknownPriceDefaultsFree(t *testing.T) {
	svc, repo, _ := newTestService()

	sub, plan, err := svc.SyncSubscription(context.Background(), NormalizedSubscription{
		UserID:                 7,
		Provider:               "stripe",
		ProviderSubscriptionID: "sub_1",
		ProviderPlanRef:        "price_unmapped",
		BillingInterval:        "month",
		Status:                 "active",
	})
	if err != nil {
		t.Fatalf("expected unmapped price to sync without error, got %v", err)
	}
	if sub.InternalPlan != "free" || plan != "free" {
		t.Fatalf("expected free plan for unmapped price, got sub=%q effective=%q", sub.InternalPlan, plan)
	}
	if repo.settings[7].Plan != "free" {
		t.Fatalf("expected user settings to stay free, got %q", repo.settings[7].Plan)
	}
}

func TestSyncSubscriptionIntervalFallbackMapping(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.mappings = append(repo.mappings, models.BillingPlanMapping{
		ID: 3, Provider: "stripe", ProviderPlanRef: "price_any", InternalPlan: "pro", BillingInterval: "unknown", IsActive: true,
	})

	_, plan, err := svc.SyncSubscription(context.Background(), NormalizedSubscription{
		UserID:                 3,
		Provider:               "stripe",
		ProviderSubscriptionID: "sub_f",
		ProviderPlanRef:        "price_any",
		BillingInterval:        "month",
		Status:                 "active",
	})
	if err != nil {
		t.Fatalf("SyncSubscription: %v", err)
	}
	if plan != "pro" {
		t.Fatalf("expected interval-agnostic mapping to apply, got %q", plan)
	}
}

func TestReconcileUserPlanPicksBestEntitling(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.subscriptions["stripe:sub_a"] = &models.BillingSubscription{
		ID: 1, UserID: 5, Provider: "stripe", ProviderSubscriptionID: "sub_a",
		InternalPlan: "pro", Status: models.BillingStatusCanceled,
	}
	repo.subscriptions["stripe:sub_b"] = &models.BillingSubscription{
		ID: 2, UserID: 5, Provider: "stripe", ProviderSubscriptionID: "sub_b",
		InternalPlan: "pro", Status: models.BillingStatusPastDue,
	}

	plan, err := svc.ReconcileUserPlan(context.Background(), 5)
	if err != nil {
		t.Fatalf("ReconcileUserPlan: %v", err)
	}
	if plan != "pro" {
		t.Fatalf("expected past_due pro subscription to entitle, got %q", plan)
	}

	repo.subscriptions["stripe:sub_b"].Status = models.BillingStatusUnpaid
	plan, err = svc.ReconcileUserPlan(context.Background(), 5)
	if err != nil {
		t.Fatalf("ReconcileUserPlan: %v", err)
	}
	if plan != "free" {
		t.Fatalf("expected no entitling subscription to mean free, got %q", plan)
	}
}

func TestHandleEventCheckoutCompleted(t *testing.T) {
	svc, repo, gw := newTestService()
	gw.subscriptions["sub_new"] = proSubscription("sub_new", "cus_1")

	err := svc.HandleEvent(context.Background(), &Event{
		ID:   "evt_1",
		Kind: EventCheckoutCompleted,
		CheckoutSession: &CheckoutSessionData{
			SessionID:      "cs_1",
			CustomerID:     "cus_1",
			SubscriptionID: "sub_new",
			UserIDMetadata: "42",
		},
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	account, err := repo.GetBillingAccountByProviderAccountID("stripe", "cus_1")
	if err != nil || account.UserID != 42 {
		t.Fatalf("expected customer cus_1 linked to user 42, got %+v err=%v", account, err)
	}
	if repo.settings[42].Plan != "pro" {
		t.Fatalf("expected user 42 upgraded to pro, got %q", repo.settings[42].Plan)
	}
}

func TestHandleEventCheckoutMissingUserIDFails(t *testing.T) {
	svc, repo, _ := newTestService()

	err := svc.HandleEvent(context.Background(), &Event{
		ID:   "evt_1",
		Kind: EventCheckoutCompleted,
		CheckoutSession: &CheckoutSessionData{
			SessionID:  "cs_1",
			CustomerID: "cus_1",
		},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for checkout without user metadata, got %v", err)
	}
	if len(repo.subscriptions) != 0 || len(repo.settings) != 0 {
		t.Fatalf("expected no mutation on failed checkout event")
	}
}

func TestHandleEventSubscriptionUnlinkedCustomerIsNoop(t *testing.T) {
	svc, repo, _ := newTestService()

	err := svc.HandleEvent(context.Background(), &Event{
		ID:           "evt_1",
		Kind:         EventSubscriptionUpdated,
		Subscription: proSubscription("sub_x", "cus_foreign"),
	})
	if err != nil {
		t.Fatalf("expected unlinked subscription event to be acknowledged, got %v", err)
	}
	if len(repo.subscriptions) != 0 {
		t.Fatalf("expected no subscription rows for unlinked customer")
	}
}

func TestHandleEventSubscriptionResolvesUserViaCustomerMetadata(t *testing.T) {
	svc, repo, gw := newTestService()
	gw.customerUserIDs["cus_meta"] = "9"

	err := svc.HandleEvent(context.Background(), &Event{
		ID:           "evt_1",
		Kind:         EventSubscriptionCreated,
		Subscription: proSubscription("sub_m", "cus_meta"),
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if repo.settings[9].Plan != "pro" {
		t.Fatalf("expected user 9 resolved via customer metadata and upgraded, got %+v", repo.settings[9])
	}
	// Linkage is persisted so the next event skips the gateway lookup.
	if _, err := repo.GetBillingAccountByProviderAccountID("stripe", "cus_meta"); err != nil {
		t.Fatalf("expected billing account stored for cus_meta: %v", err)
	}
}

func TestHandleEventSubscriptionDeletedIdempotent(t *testing.T) {
	svc, repo, gw := newTestService()
	gwSub := proSubscription("sub_d", "cus_del")
	gwSub.UserIDMetadata = "11"

	created := *gwSub
	if err := svc.HandleEvent(context.Background(), &Event{ID: "evt_c", Kind: EventSubscriptionCreated, Subscription: &created}); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if repo.settings[11].Plan != "pro" {
		t.Fatalf("expected pro after create, got %q", repo.settings[11].Plan)
	}

	// The gateway reports canceled after deletion; deliver the delete twice.
	gwSub.Status = "canceled"
	for i := 0; i < 2; i++ {
		cp := *gwSub
		if err := svc.HandleEvent(context.Background(), &Event{ID: "evt_d", Kind: EventSubscriptionDeleted, Subscription: &cp}); err != nil {
			t.Fatalf("delete event delivery %d: %v", i+1, err)
		}
	}

	stored := repo.subscriptions["stripe:sub_d"]
	if stored.Status != models.BillingStatusCanceled {
		t.Fatalf("expected stored status canceled, got %q", stored.Status)
	}
	if repo.settings[11].Plan != "free" {
		t.Fatalf("expected plan reconciled to free, got %q", repo.settings[11].Plan)
	}
	_ = gw
}

func TestHandleEventInvoiceEventsAreNoops(t *testing.T) {
	svc, repo, _ := newTestService()
	for _, kind := range []EventKind{EventInvoicePaid, EventInvoicePaymentFailed, EventIgnored} {
		if err := svc.HandleEvent(context.Background(), &Event{ID: "evt", Kind: kind}); err != nil {
			t.Fatalf("expected kind %v to be a no-op, got %v", kind, err)
		}
	}
	if len(repo.subscriptions) != 0 || len(repo.settings) != 0 {
		t.Fatalf("expected invoice events to leave state untouched")
	}
}

func TestRecordWebhookEventDedup(t *testing.T) {
	svc, _, _ := newTestService()
	in := WebhookEventInput{
		Provider:        "stripe",
		ProviderEventID: "evt_dup",
		EventType:       "customer.subscription.updated",
		PayloadJSON:     `{"id":"evt_dup"}`,
		SignatureValid:  true,
	}

	created, first, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || !created {
		t.Fatalf("expected first delivery to create, created=%v err=%v", created, err)
	}
	created, second, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if created {
		t.Fatalf("expected redelivery to dedupe")
	}
	if first.ID != second.ID {
		t.Fatalf("expected the stored row to be returned on redelivery")
	}
}

func TestRecordWebhookEventHashFallback(t *testing.T) {
	svc, _, _ := newTestService()
	in := WebhookEventInput{Provider: "stripe", PayloadJSON: `{"no":"id"}`}

	created, stored, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || !created {
		t.Fatalf("first delivery: created=%v err=%v", created, err)
	}
	if !strings.HasPrefix(stored.ProviderEventID, "hash:") {
		t.Fatalf("expected hash-keyed event ID, got %q", stored.ProviderEventID)
	}
	created, _, err = svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || created {
		t.Fatalf("expected identical payload to dedupe via hash, created=%v err=%v", created, err)
	}
}

func TestCreateCheckoutSessionCreatesCustomerOnce(t *testing.T) {
	svc, repo, gw := newTestService()

	url1, err := svc.CreateCheckoutSession(context.Background(), 4, "a@example.com", "pro")
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	url2, err := svc.CreateCheckoutSession(context.Background(), 4, "a@example.com", "pro")
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if url1 == "" || url2 == "" {
		t.Fatalf("expected checkout URLs")
	}
	if gw.createdCustomers != 1 {
		t.Fatalf("expected exactly one gateway customer, got %d", gw.createdCustomers)
	}
	if _, err := repo.GetBillingAccountByUserID(4, "stripe"); err != nil {
		t.Fatalf("expected billing account persisted: %v", err)
	}
}

func TestCreateCheckoutSessionRejectsFreePlan(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.CreateCheckoutSession(context.Background(), 4, "a@example.com", "free"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for free plan checkout, got %v", err)
	}
}

func TestCancelSubscriptionTouchesGatewayOnly(t *testing.T) {
	svc, repo, gw := newTestService()
	repo.subscriptions["stripe:sub_c"] = &models.BillingSubscription{
		ID: 1, UserID: 8, Provider: "stripe", ProviderSubscriptionID: "sub_c",
		InternalPlan: "pro", Status: models.BillingStatusActive,
	}

	if err := svc.CancelSubscription(context.Background(), 8); err != nil {
		t.Fatalf("CancelSubscription: %v", err)
	}
	if len(gw.canceledSubs) != 1 || gw.canceledSubs[0] != "sub_c" {
		t.Fatalf("expected gateway cancel for sub_c, got %v", gw.canceledSubs)
	}
	// Local state stays untouched until the webhook arrives.
	stored := repo.subscriptions["stripe:sub_c"]
	if stored.Status != models.BillingStatusActive || stored.CancelAtPeriodEnd {
		t.Fatalf("expected local row unchanged, got %+v", stored)
	}
}

func TestCancelSubscriptionNoEntitlingSubscription(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.subscriptions["stripe:sub_gone"] = &models.BillingSubscription{
		ID: 1, UserID: 8, Provider: "stripe", ProviderSubscriptionID: "sub_gone",
		InternalPlan: "pro", Status: models.BillingStatusCanceled,
	}
	if err := svc.CancelSubscription(context.Background(), 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetSubscriptionStatus(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.subscriptions["stripe:sub_s"] = &models.BillingSubscription{
		ID: 1, UserID: 2, Provider: "stripe", ProviderSubscriptionID: "sub_s",
		InternalPlan: "pro", Status: models.BillingStatusActive,
	}
	repo.settings[2] = &models.UserSettings{ID: 99, UserID: 2, Plan: "pro"}

	subs, plan, err := svc.GetSubscriptionStatus(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetSubscriptionStatus: %v", err)
	}
	if len(subs) != 1 || plan != "pro" {
		t.Fatalf("expected one subscription and pro plan, got %d subs plan=%q", len(subs), plan)
	}
}
