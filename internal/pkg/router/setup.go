package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditFox/app/controllers"
	"github.com/ManuelReschke/CreditFox/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps are the handlers and collaborators the routes are built from.
type Deps struct {
	Store    controllers.Pinger
	Webhooks *controllers.WebhookController
	Credits  *controllers.CreditController
	Payments *controllers.PaymentController
	Tokens   middleware.TokenResolver
}

func InstallRouter(app *fiber.App, deps Deps) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
