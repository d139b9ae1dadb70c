package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/app/repository"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/database"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/entitlements"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/metrics/counter"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/usercontext"
)

// HandleGetUserMe returns account information for the authenticated user (API key or session).
func HandleGetUserMe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	db := database.GetDB()
	if db == nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Database unavailable")
	}
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user settings")
	}

	plan := entitlements.Normalize(settings.Plan)
	limits := entitlements.LimitsFor(settings.Plan)

	return c.JSON(fiber.Map{
		"id":            account.ID,
		"username":      account.Name,
		"email":         account.Email,
		"status":        account.Status,
		"plan":          string(plan),
		"is_admin":      account.Role == models.ROLE_ADMIN,
		"created_at":    account.CreatedAt.UTC().Format(time.RFC3339),
		"last_login_at": formatTimePtr(account.LastLoginAt),
		"api_key": fiber.Map{
			"active":       settings.HasActiveAPIKey(),
			"prefix":       settings.APIKeyPrefix,
			"created_at":   formatTimePtr(settings.APIKeyCreatedAt),
			"last_used_at": formatTimePtr(settings.APIKeyLastUsedAt),
		},
		"limits": fiber.Map{
			"chat_messages_per_day": limits.ChatMessagesPerDay,
			"max_chat_sessions":     limits.MaxChatSessions,
			"context_chunks":        limits.ContextChunks,
		},
	})
}

// HandleGetUserUsage reports today's message consumption against the plan limit.
func HandleGetUserUsage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	usedToday, err := counter.GetDailyUsage(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load usage")
	}

	limits := entitlements.LimitsFor(userCtx.Plan)
	var remaining interface{}
	if limits.ChatMessagesPerDay > 0 {
		r := int64(limits.ChatMessagesPerDay) - usedToday
		if r < 0 {
			r = 0
		}
		remaining = r
	}

	return c.JSON(fiber.Map{
		"plan":                userCtx.Plan,
		"messages_used_today": usedToday,
		"messages_per_day":    limits.ChatMessagesPerDay,
		"messages_remaining":  remaining,
		"date":                time.Now().UTC().Format("2006-01-02"),
	})
}

// HandleCreateAPIKey generates a fresh API key; the plaintext is only returned once.
func HandleCreateAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	db := database.GetDB()
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user settings")
	}

	key, err := settings.GenerateAPIKey()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to generate API key")
	}

	if err := db.Save(settings).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store API key")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key":    key,
		"prefix":     settings.APIKeyPrefix,
		"created_at": formatTimePtr(settings.APIKeyCreatedAt),
		"message":    "Store this key now. It will not be shown again.",
	})
}

// HandleRevokeAPIKey invalidates the current API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	db := database.GetDB()
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user settings")
	}

	if !settings.HasActiveAPIKey() {
		return jsonError(c, fiber.StatusNotFound, "not_found", "No active API key")
	}

	settings.RevokeAPIKey()
	if err := db.Save(settings).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to revoke API key")
	}

	return c.JSON(fiber.Map{"message": "API key revoked"})
}
