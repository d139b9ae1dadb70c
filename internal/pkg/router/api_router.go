package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/fluxoalfa/fluxoalfa/app/controllers"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/constants"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// The webhook route is registered before the rate limiter group so gateway
	// retries are never throttled. Signature verification happens in the
	// controller on the raw body.
	app.Post(constants.WebhookRoute, controllers.HandleStripeWebhook)

	api := app.Group("/api", limiter.New())
	v1 := api.Group("/v1")

	auth := v1.Group("/auth")
	auth.Post("/register", controllers.HandleAuthRegister)
	auth.Post("/login", controllers.HandleAuthLogin)
	auth.Post("/logout", middleware.RequireAPISessionAuth, controllers.HandleAuthLogout)
	auth.Get("/activate/:token", controllers.HandleAuthActivate)

	user := v1.Group("/user", sessionOrAPIKeyAuth())
	user.Get("/me", controllers.HandleGetUserMe)
	user.Get("/usage", controllers.HandleGetUserUsage)
	user.Post("/apikey", controllers.HandleCreateAPIKey)
	user.Delete("/apikey", controllers.HandleRevokeAPIKey)

	billing := v1.Group("/billing", middleware.RequireAPISessionAuth)
	billing.Post("/checkout", controllers.HandleBillingCheckout)
	billing.Post("/portal", controllers.HandleBillingPortal)
	billing.Get("/subscription", controllers.HandleBillingSubscription)
	billing.Post("/cancel", controllers.HandleBillingCancel)
	billing.Post("/resync", controllers.HandleBillingResync)

	chat := v1.Group("/chat", sessionOrAPIKeyAuth())
	chat.Post("/sessions", controllers.HandleCreateChatSession)
	chat.Get("/sessions", controllers.HandleListChatSessions)
	chat.Get("/sessions/:uuid", controllers.HandleGetChatSession)
	chat.Delete("/sessions/:uuid", controllers.HandleDeleteChatSession)
	chat.Post("/sessions/:uuid/messages", controllers.HandleSendChatMessage)

	admin := v1.Group("/admin", middleware.RequireAPIAdmin)
	admin.Post("/sources", controllers.HandleAdminCreateSource)
	admin.Get("/sources", controllers.HandleAdminListSources)
	admin.Get("/sources/:uuid", controllers.HandleAdminGetSource)
	admin.Post("/sources/:uuid/reindex", controllers.HandleAdminReindexSource)
	admin.Delete("/sources/:uuid", controllers.HandleAdminDeleteSource)
	admin.Get("/users", controllers.HandleAdminListUsers)
	admin.Get("/stats", controllers.HandleAdminStats)
	admin.Get("/jobs", controllers.HandleAdminJobs)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

// sessionOrAPIKeyAuth accepts either a logged-in web session or an API key
// header, so the same endpoints serve browsers and machine clients.
func sessionOrAPIKeyAuth() fiber.Handler {
	apiKeyAuth := middleware.APIKeyAuthMiddleware()
	return func(c *fiber.Ctx) error {
		if c.Get("X-API-Key") != "" || strings.HasPrefix(strings.ToLower(c.Get("Authorization")), "bearer ") {
			return apiKeyAuth(c)
		}
		return middleware.RequireAPISessionAuth(c)
	}
}
