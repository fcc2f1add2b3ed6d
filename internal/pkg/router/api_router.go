package router

import (
	"github.com/gofiber/fiber/v2"

	apiv1 "github.com/ManuelReschke/CreditFox/internal/api/v1"
	"github.com/ManuelReschke/CreditFox/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	user := app.Group("/api/user")
	apiServer := apiv1.NewAPIServer(h.deps.Webhooks, h.deps.Credits, h.deps.Payments)
	apiv1.RegisterHandlers(user, apiServer,
		middleware.IdentityTokenAuth(h.deps.Tokens),
		middleware.RequireAPIAuth,
	)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
