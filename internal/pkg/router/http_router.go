package router

import (
	"github.com/pressline/insiderhub/app/controllers"
	"github.com/pressline/insiderhub/internal/pkg/constants"
	"github.com/pressline/insiderhub/internal/pkg/middleware"
	"github.com/pressline/insiderhub/internal/pkg/session"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply AccountContext middleware globally as first middleware
	app.Use(middleware.AccountContextMiddleware)

	h.registerPublicRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Provider webhook ingress. The /api/v1 twin is installed by ApiRouter;
	// both call the same handler and rely on the processed-event ledger.
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)

	app.Post(constants.RegisterRoute, controllers.HandleRegister)
	app.Post(constants.LoginRoute, controllers.HandleLogin)
	app.Post(constants.LogoutRoute, controllers.HandleLogout)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
