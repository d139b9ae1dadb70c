package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fluxoalfa/fluxoalfa/internal/pkg/usercontext"
)

// AUTH_KEY marks a session as authenticated.
const AUTH_KEY string = "authenticated"

func isLoggedIn(c *fiber.Ctx) bool {
	return usercontext.IsLoggedIn(c)
}

// jsonError writes a uniform error envelope.
func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
