package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/entitlements"
)

// Service provides gateway-neutral billing synchronization and reconciliation.
// All local subscription state flows through here; controllers never touch
// the gateway SDK or the billing tables directly.
type Service struct {
	repo    Repository
	gateway Gateway
}

// NewService creates a billing service from an injected repository and gateway.
func NewService(repo Repository, gateway Gateway) *Service {
	return &Service{repo: repo, gateway: gateway}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway) *Service {
	return NewService(NewRepository(db), gateway)
}

// UpsertBillingAccount creates or updates the linked gateway customer for a user.
func (s *Service) UpsertBillingAccount(ctx context.Context, userID uint, provider, providerAccountID, email string) (*models.BillingAccount, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	paID := strings.TrimSpace(providerAccountID)
	if userID == 0 || p == "" || paID == "" {
		return nil, fmt.Errorf("%w: user_id, provider and provider_account_id are required", ErrValidation)
	}

	account := &models.BillingAccount{
		UserID:            userID,
		Provider:          p,
		ProviderAccountID: paID,
		Email:             strings.TrimSpace(email),
	}
	if err := s.repo.UpsertBillingAccount(account); err != nil {
		return nil, err
	}
	return account, nil
}

// GetBillingAccountByProviderAccountID resolves a gateway customer to the local account linkage.
func (s *Service) GetBillingAccountByProviderAccountID(ctx context.Context, provider, providerAccountID string) (*models.BillingAccount, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	paID := strings.TrimSpace(providerAccountID)
	if p == "" || paID == "" {
		return nil, fmt.Errorf("%w: provider and provider_account_id are required", ErrValidation)
	}
	account, err := s.repo.GetBillingAccountByProviderAccountID(p, paID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return account, err
}

// ResolveMappedPlan resolves a gateway price reference to an internal plan.
// An unmapped price resolves to free with a warning instead of failing, so a
// forgotten mapping row never blocks webhook processing.
func (s *Service) ResolveMappedPlan(ctx context.Context, provider, providerPlanRef, interval string) (string, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	ref := strings.TrimSpace(providerPlanRef)
	i := normalizeInterval(interval)
	if p == "" || ref == "" {
		return string(entitlements.PlanFree), fmt.Errorf("%w: provider and provider plan ref are required", ErrValidation)
	}

	// Prefer exact interval match.
	m, err := s.repo.FindActivePlanMapping(p, ref, i)
	if err == nil {
		return normalizePlan(m.InternalPlan), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	// Fallback for mappings that intentionally use "unknown".
	if i != models.BillingIntervalUnknown {
		m, err = s.repo.FindActivePlanMapping(p, ref, models.BillingIntervalUnknown)
		if err == nil {
			return normalizePlan(m.InternalPlan), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
	}

	log.Printf("[Billing] no active plan mapping for provider=%s ref=%s interval=%s, defaulting to free", p, ref, i)
	return string(entitlements.PlanFree), nil
}

// SyncSubscription upserts gateway subscription data and reconciles the user plan.
func (s *Service) SyncSubscription(ctx context.Context, in NormalizedSubscription) (*models.BillingSubscription, string, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if in.UserID == 0 || provider == "" || strings.TrimSpace(in.ProviderSubscriptionID) == "" {
		return nil, "", fmt.Errorf("%w: user_id, provider and provider_subscription_id are required", ErrValidation)
	}

	interval := normalizeInterval(in.BillingInterval)
	status := strings.ToLower(strings.TrimSpace(in.Status))
	if status == "" {
		status = models.BillingStatusActive
	}

	internalPlan, err := s.ResolveMappedPlan(ctx, provider, in.ProviderPlanRef, interval)
	if err != nil {
		return nil, "", err
	}

	sub := &models.BillingSubscription{
		UserID:                 in.UserID,
		Provider:               provider,
		ProviderSubscriptionID: strings.TrimSpace(in.ProviderSubscriptionID),
		ProviderPlanRef:        strings.TrimSpace(in.ProviderPlanRef),
		InternalPlan:           internalPlan,
		BillingInterval:        interval,
		Status:                 status,
		CurrentPeriodStart:     in.CurrentPeriodStart,
		CurrentPeriodEnd:       in.CurrentPeriodEnd,
		CancelAtPeriodEnd:      in.CancelAtPeriodEnd,
		RawPayloadJSON:         in.RawPayloadJSON,
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, "", err
	}

	effectivePlan, err := s.ReconcileUserPlan(ctx, in.UserID)
	if err != nil {
		return sub, "", err
	}
	return sub, effectivePlan, nil
}

// ReconcileUserPlan computes and writes the best effective plan for a user.
// The write is skipped when the stored plan already matches, which keeps
// webhook redelivery from churning user_settings rows.
func (s *Service) ReconcileUserPlan(ctx context.Context, userID uint) (string, error) {
	_ = ctx
	if userID == 0 {
		return "", fmt.Errorf("%w: user_id is required", ErrValidation)
	}

	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return "", err
	}

	best := string(entitlements.PlanFree)
	for _, sub := range subs {
		if !isEntitlingStatus(sub.Status) {
			continue
		}
		candidate := normalizePlan(sub.InternalPlan)
		if planRank(candidate) > planRank(best) {
			best = candidate
		}
	}

	us, err := s.repo.GetOrCreateUserSettings(userID)
	if err != nil {
		return "", err
	}
	if normalizePlan(us.Plan) == best {
		return best, nil
	}
	us.Plan = best
	if err := s.repo.SaveUserSettings(us); err != nil {
		return "", err
	}
	return best, nil
}

// RecordWebhookEvent persists a webhook payload idempotently. The returned
// bool is false when the event ID was seen before. Events without a provider
// event ID are keyed by a payload hash so replays of those dedupe too.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, fmt.Errorf("%w: provider is required", ErrValidation)
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return fmt.Errorf("%w: webhook_event_id is required", ErrValidation)
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// HandleEvent applies a verified gateway event to local state. Unknown event
// kinds and invoice notifications are logged no-ops; the gateway stays the
// source of truth and only subscription-shaped events mutate anything.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("%w: event is required", ErrValidation)
	}

	switch event.Kind {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.handleSubscriptionChanged(ctx, event)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case EventInvoicePaid:
		log.Printf("[Billing] invoice paid event %s acknowledged", event.ID)
		return nil
	case EventInvoicePaymentFailed:
		// The gateway follows up with a subscription.updated carrying
		// past_due/unpaid, which is what actually drives entitlements.
		log.Printf("[Billing] invoice payment failed event %s acknowledged", event.ID)
		return nil
	default:
		log.Printf("[Billing] ignoring event %s type=%s", event.ID, event.RawType)
		return nil
	}
}

// handleCheckoutCompleted links the new gateway customer to the user named in
// the session metadata and syncs the subscription created by checkout.
// Missing user metadata here is a hard error: checkout sessions are created
// by us, so an absent user_id means a misconfigured integration, not a
// foreign event.
func (s *Service) handleCheckoutCompleted(ctx context.Context, event *Event) error {
	cs := event.CheckoutSession
	if cs == nil {
		return fmt.Errorf("%w: checkout event %s without session data", ErrValidation, event.ID)
	}

	userID, err := parseUserIDMetadata(cs.UserIDMetadata)
	if err != nil {
		return fmt.Errorf("%w: checkout session %s: %v", ErrValidation, cs.SessionID, err)
	}

	if cs.CustomerID != "" {
		if _, err := s.UpsertBillingAccount(ctx, userID, s.gateway.Provider(), cs.CustomerID, ""); err != nil {
			return err
		}
	}

	if cs.SubscriptionID == "" {
		// Payment-mode sessions carry no subscription; nothing to sync.
		return nil
	}

	gwSub, err := s.gateway.GetSubscription(ctx, cs.SubscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", cs.SubscriptionID, err)
	}
	_, plan, err := s.SyncSubscription(ctx, s.normalize(userID, gwSub))
	if err != nil {
		return err
	}
	log.Printf("[Billing] checkout %s completed for user %d, plan=%s", cs.SessionID, userID, plan)
	return nil
}

// handleSubscriptionChanged syncs created/updated subscription events. When
// no local user can be resolved the event is acknowledged without effect:
// subscription events for customers we never issued are legitimate (other
// products on the same gateway account) and must not bounce the webhook.
func (s *Service) handleSubscriptionChanged(ctx context.Context, event *Event) error {
	gwSub := event.Subscription
	if gwSub == nil {
		return fmt.Errorf("%w: subscription event %s without subscription data", ErrValidation, event.ID)
	}

	userID, err := s.resolveSubscriptionUser(ctx, gwSub)
	if err != nil {
		return err
	}
	if userID == 0 {
		log.Printf("[Billing] subscription event %s for unlinked customer %s, skipping", event.ID, gwSub.CustomerID)
		return nil
	}

	if gwSub.CustomerID != "" {
		if _, err := s.UpsertBillingAccount(ctx, userID, s.gateway.Provider(), gwSub.CustomerID, ""); err != nil {
			return err
		}
	}

	_, _, err = s.SyncSubscription(ctx, s.normalize(userID, gwSub))
	return err
}

// handleSubscriptionDeleted pins the local row to canceled and reconciles the
// plan down. The status is forced rather than trusted from the payload so a
// delayed delete event cannot resurrect an entitling status.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	gwSub := event.Subscription
	if gwSub == nil {
		return fmt.Errorf("%w: subscription event %s without subscription data", ErrValidation, event.ID)
	}

	userID, err := s.resolveSubscriptionUser(ctx, gwSub)
	if err != nil {
		return err
	}
	if userID == 0 {
		log.Printf("[Billing] subscription delete event %s for unlinked customer %s, skipping", event.ID, gwSub.CustomerID)
		return nil
	}

	in := s.normalize(userID, gwSub)
	in.Status = models.BillingStatusCanceled
	_, plan, err := s.SyncSubscription(ctx, in)
	if err != nil {
		return err
	}
	log.Printf("[Billing] subscription %s deleted, user %d reconciled to plan=%s", gwSub.ID, userID, plan)
	return nil
}

// resolveSubscriptionUser finds the local user for a gateway subscription:
// subscription metadata first, then the local customer linkage, then the
// gateway customer's metadata. Returns 0 when no linkage exists.
func (s *Service) resolveSubscriptionUser(ctx context.Context, gwSub *GatewaySubscription) (uint, error) {
	if gwSub.UserIDMetadata != "" {
		userID, err := parseUserIDMetadata(gwSub.UserIDMetadata)
		if err == nil {
			return userID, nil
		}
		log.Printf("[Billing] subscription %s carries invalid user metadata %q: %v", gwSub.ID, gwSub.UserIDMetadata, err)
	}

	if gwSub.CustomerID != "" {
		account, err := s.repo.GetBillingAccountByProviderAccountID(s.gateway.Provider(), gwSub.CustomerID)
		if err == nil {
			return account.UserID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}

		raw, err := s.gateway.GetCustomerUserID(ctx, gwSub.CustomerID)
		if err != nil {
			return 0, fmt.Errorf("fetch customer %s: %w", gwSub.CustomerID, err)
		}
		if raw != "" {
			userID, err := parseUserIDMetadata(raw)
			if err == nil {
				return userID, nil
			}
			log.Printf("[Billing] customer %s carries invalid user metadata %q: %v", gwSub.CustomerID, raw, err)
		}
	}

	return 0, nil
}

func (s *Service) normalize(userID uint, gwSub *GatewaySubscription) NormalizedSubscription {
	return NormalizedSubscription{
		UserID:                 userID,
		Provider:               s.gateway.Provider(),
		ProviderSubscriptionID: gwSub.ID,
		ProviderPlanRef:        gwSub.PriceID,
		BillingInterval:        gwSub.Interval,
		Status:                 gwSub.Status,
		CurrentPeriodStart:     gwSub.CurrentPeriodStart,
		CurrentPeriodEnd:       gwSub.CurrentPeriodEnd,
		CancelAtPeriodEnd:      gwSub.CancelAtPeriodEnd,
		RawPayloadJSON:         gwSub.RawJSON,
	}
}

func parseUserIDMetadata(raw string) (uint, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return uint(v), nil
}

// CreateCheckoutSession starts a subscription checkout for the user's target
// plan, creating the gateway customer on first use. The customer linkage is
// stored before redirecting so subscription webhooks can always resolve the
// user even when session metadata is stripped.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uint, email, internalPlan string) (string, error) {
	if userID == 0 {
		return "", fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	plan := normalizePlan(internalPlan)
	if plan == string(entitlements.PlanFree) {
		return "", fmt.Errorf("%w: cannot checkout the free plan", ErrValidation)
	}

	mapping, err := s.repo.FindActiveMappingForPlan(s.gateway.Provider(), plan)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: no active price for plan %s", ErrValidation, plan)
		}
		return "", err
	}

	customerID, err := s.ensureCustomer(ctx, userID, email)
	if err != nil {
		return "", err
	}

	return s.gateway.CreateCheckoutSession(ctx, customerID, mapping.ProviderPlanRef, userID)
}

// CreatePortalSession opens the gateway billing portal for the user.
func (s *Service) CreatePortalSession(ctx context.Context, userID uint) (string, error) {
	if userID == 0 {
		return "", fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	account, err := s.repo.GetBillingAccountByUserID(userID, s.gateway.Provider())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return s.gateway.CreatePortalSession(ctx, account.ProviderAccountID)
}

// CancelSubscription requests cancellation at period end for the user's
// entitling subscription. Only the gateway is told; local rows stay untouched
// until the resulting subscription.updated webhook arrives, so the user keeps
// access for the remainder of the paid period.
func (s *Service) CancelSubscription(ctx context.Context, userID uint) error {
	if userID == 0 {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}

	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.Provider != s.gateway.Provider() || !isEntitlingStatus(sub.Status) || sub.CancelAtPeriodEnd {
			continue
		}
		return s.gateway.CancelAtPeriodEnd(ctx, sub.ProviderSubscriptionID)
	}
	return ErrNotFound
}

// GetSubscriptionStatus returns the user's subscriptions plus the effective plan.
func (s *Service) GetSubscriptionStatus(ctx context.Context, userID uint) ([]models.BillingSubscription, string, error) {
	_ = ctx
	if userID == 0 {
		return nil, "", fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return nil, "", err
	}
	us, err := s.repo.GetOrCreateUserSettings(userID)
	if err != nil {
		return nil, "", err
	}
	return subs, normalizePlan(us.Plan), nil
}

func (s *Service) ensureCustomer(ctx context.Context, userID uint, email string) (string, error) {
	account, err := s.repo.GetBillingAccountByUserID(userID, s.gateway.Provider())
	if err == nil && account.ProviderAccountID != "" {
		return account.ProviderAccountID, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	customerID, err := s.gateway.CreateCustomer(ctx, userID, email)
	if err != nil {
		return "", err
	}
	if _, err := s.UpsertBillingAccount(ctx, userID, s.gateway.Provider(), customerID, email); err != nil {
		return "", err
	}
	return customerID, nil
}
