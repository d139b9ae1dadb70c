package controllers

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/database"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/env"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/hcaptcha"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/mail"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/session"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/statistics"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/usercontext"
)

type registerRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAuthRegister creates an inactive account and mails the activation link.
func HandleAuthRegister(c *fiber.Ctx) error {
	settings := models.GetAppSettings()
	if settings != nil && !settings.IsRegistrationEnabled() {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Registration is currently disabled")
	}

	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	valid, err := hcaptcha.Verify(req.CaptchaToken)
	if err != nil || !valid {
		if err != nil {
			log.Printf("hCaptcha validation error: %v", err)
		}
		return jsonError(c, fiber.StatusBadRequest, "captcha_failed", "Captcha validation failed. Please try again.")
	}

	user, err := models.CreateUser(req.Username, req.Email, req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	if err := user.GenerateActivationToken(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not create activation token")
	}

	if err := database.GetDB().Create(user).Error; err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			return jsonError(c, fiber.StatusConflict, "conflict", "An account with this email already exists")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not create account")
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	activationURL := fmt.Sprintf("%s/api/v1/auth/activate/%s", base, user.ActivationToken)
	body := fmt.Sprintf("Welcome to Fluxo Alfa!\n\nPlease activate your account:\n%s\n", activationURL)
	if err := mail.SendMail(user.Email, "Activate your Fluxo Alfa account", body); err != nil {
		// Account exists; activation can be re-sent by support.
		log.Printf("failed to send activation mail to user %d: %v", user.ID, err)
	}

	// Update statistics after registration
	go statistics.UpdateStatisticsCache()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":      user.ID,
		"email":   user.Email,
		"status":  user.Status,
		"message": "Registration successful. Check your mail for the activation link.",
	})
}

// HandleAuthActivate switches an account to active when the token matches.
func HandleAuthActivate(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Params("token"))
	if token == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing activation token")
	}

	db := database.GetDB()
	var user models.User
	if err := db.Where("activation_token = ?", token).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Invalid activation token")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Activation failed")
	}

	if user.Status == models.STATUS_ACTIVE {
		return c.JSON(fiber.Map{"message": "Account already active"})
	}

	updates := map[string]any{
		"status":           models.STATUS_ACTIVE,
		"activation_token": "",
	}
	if err := db.Model(&user).Updates(updates).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Activation failed")
	}

	return c.JSON(fiber.Map{"message": "Account activated. You can log in now."})
}

// HandleAuthLogin verifies credentials and opens a Redis-backed session.
func HandleAuthLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	// notice: in production you should not inform the user
	// with detailed messages about login failures
	var user models.User
	result := database.GetDB().Where("email = ?", req.Email).First(&user)
	if result.Error != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "There is a problem with the login process")
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "There is a problem with the login process")
	}

	if !user.IsActive() {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Account is not activated")
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Session init failed")
	}

	sess.Set(AUTH_KEY, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUserName, user.Name)
	sess.Set(usercontext.KeyIsAdmin, user.Role == models.ROLE_ADMIN)

	if err := sess.Save(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Session save failed")
	}

	// Cache user plan in session for entitlement checks
	if us, err := models.GetOrCreateUserSettings(database.GetDB(), user.ID); err == nil && us != nil && us.Plan != "" {
		_ = session.SetSessionValue(c, "user_plan", us.Plan)
	} else {
		_ = session.SetSessionValue(c, "user_plan", "free")
	}

	database.GetDB().Model(&user).Update("last_login_at", time.Now())

	return c.JSON(fiber.Map{
		"id":       user.ID,
		"username": user.Name,
		"email":    user.Email,
		"is_admin": user.Role == models.ROLE_ADMIN,
	})
}

// HandleAuthLogout destroys the current session.
func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return c.JSON(fiber.Map{"message": "logged out"})
	}

	if err := sess.Destroy(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Logout failed")
	}

	c.Locals(usercontext.KeyFromProtected, false)

	return c.JSON(fiber.Map{"message": "logged out"})
}
