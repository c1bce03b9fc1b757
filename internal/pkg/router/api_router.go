package router

import (
	"github.com/pressline/insiderhub/app/controllers"
	"github.com/pressline/insiderhub/internal/pkg/constants"
	"github.com/pressline/insiderhub/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		// Webhook deliveries must never be shed; everything else gets the
		// default budget.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == constants.APIStripeWebhookRoute
		},
	}))

	v1 := api.Group("/v1")

	// Historical second ingress route, same handler as /webhooks/stripe.
	v1.Post("/webhooks/stripe", controllers.HandleStripeWebhook)

	v1.Get("/articles/:id/access", controllers.HandleArticleAccess)
	v1.Post("/articles/:id/read", controllers.HandleArticleRead)

	v1.Get("/membership", middleware.RequireAPISessionAuth, controllers.HandleMembershipSummary)

	admin := v1.Group("/admin", middleware.RequireAPIAdminAuth)
	admin.Put("/accounts/:id/role", controllers.HandleSetAccountRole)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
