package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fluxoalfa/fluxoalfa/app/controllers"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/middleware"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/oauth"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"service": "fluxoalfa", "status": "ok"})
	})

	// Social OAuth (browser flow, outside the JSON API prefix)
	app.Get("/auth/:provider", controllers.HandleOAuthBegin)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
