package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/ManuelReschke/CreditFox/app/controllers"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

const corsAllowHeaders = "Origin, Content-Type, Accept, Authorization, token, svix-id, svix-timestamp, svix-signature"

type HttpRouter struct {
	deps Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Use(cors.New(cors.Config{
		AllowOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: corsAllowHeaders,
	}))

	app.Get("/", controllers.HandleIndex)
	app.Get("/api/health", controllers.NewHealthController(h.deps.Store).HandleHealth)
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}
