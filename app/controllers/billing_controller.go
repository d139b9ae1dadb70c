package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/repository"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/billing"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/database"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/session"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/usercontext"
)

type checkoutRequest struct {
	Plan string `json:"plan"`
}

func billingService() *billing.Service {
	gateway := billing.NewStripeGateway(billing.StripeConfigFromEnv())
	return billing.NewServiceFromDB(database.GetDB(), gateway)
}

// HandleBillingCheckout starts a hosted checkout session for a paid plan.
func HandleBillingCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	var email string
	if user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID); err == nil {
		email = user.Email
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	url, err := billingService().CreateCheckoutSession(ctx, userCtx.UserID, email, req.Plan)
	if err != nil {
		if errors.Is(err, billing.ErrValidation) {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
		}
		if errors.Is(err, billing.ErrNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "No billable plan mapping found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Checkout session failed")
	}

	return c.JSON(fiber.Map{"checkout_url": url})
}

// HandleBillingPortal opens the gateway self-service portal.
func HandleBillingPortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	url, err := billingService().CreatePortalSession(ctx, userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "No billing account linked")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Portal session failed")
	}

	return c.JSON(fiber.Map{"portal_url": url})
}

// HandleBillingSubscription returns the user's subscriptions and effective plan.
func HandleBillingSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	subs, effectivePlan, err := billingService().GetSubscriptionStatus(ctx, userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load subscriptions")
	}

	items := make([]fiber.Map, 0, len(subs))
	for _, s := range subs {
		items = append(items, fiber.Map{
			"provider":             s.Provider,
			"subscription_id":      s.ProviderSubscriptionID,
			"status":               s.Status,
			"interval":             s.BillingInterval,
			"cancel_at_period_end": s.CancelAtPeriodEnd,
			"current_period_end":   formatTimePtr(s.CurrentPeriodEnd),
		})
	}

	return c.JSON(fiber.Map{
		"plan":          effectivePlan,
		"subscriptions": items,
	})
}

// HandleBillingCancel flags the active subscription for cancellation at period end.
// Local state stays untouched until the gateway confirms via webhook.
func HandleBillingCancel(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := billingService().CancelSubscription(ctx, userCtx.UserID); err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "No active subscription")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Cancellation failed")
	}

	return c.JSON(fiber.Map{"message": "Subscription will cancel at period end"})
}

// HandleBillingResync recomputes the user's effective plan from stored subscriptions.
func HandleBillingResync(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	effectivePlan, err := billingService().ReconcileUserPlan(ctx, userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Plan resync failed")
	}

	_ = session.SetSessionValue(c, "user_plan", effectivePlan)

	return c.JSON(fiber.Map{"plan": effectivePlan})
}

// HandleStripeWebhook ingests gateway webhook deliveries. The raw body is
// needed for signature verification, so this route must bypass any body
// transformation middleware.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	svc := billingService()
	gateway := billing.NewStripeGateway(billing.StripeConfigFromEnv())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	event, verifyErr := gateway.VerifyWebhook(rawBody, signature)
	signatureValid := verifyErr == nil

	input := billing.WebhookEventInput{
		Provider:       gateway.Provider(),
		PayloadJSON:    string(rawBody),
		SignatureValid: signatureValid,
	}
	if event != nil {
		input.ProviderEventID = event.ID
		input.EventType = event.RawType
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, input)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !signatureValid {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	handleErr := svc.HandleEvent(ctx, event)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, handleErr)
	if handleErr != nil {
		if errors.Is(handleErr, billing.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		if errors.Is(handleErr, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
