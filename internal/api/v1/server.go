package apiv1

import "github.com/gofiber/fiber/v2"

// ServerInterface lists the operations of public/docs/v1/openapi.yml.
type ServerInterface interface {
	PostUserWebhook(c *fiber.Ctx) error
	GetUserCredits(c *fiber.Ctx) error
	PostSpendCredits(c *fiber.Ctx) error
	PostPayRazor(c *fiber.Ctx) error
	PostVerifyRazor(c *fiber.Ctx) error
}

// RegisterHandlers mounts the user API on router. auth guards every route
// except the webhook, which carries its own signature.
func RegisterHandlers(router fiber.Router, si ServerInterface, auth ...fiber.Handler) {
	router.Post("/webhooks", si.PostUserWebhook)

	protected := func(h fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, auth...), h)
	}
	router.Get("/credits", protected(si.GetUserCredits)...)
	router.Post("/credits/spend", protected(si.PostSpendCredits)...)
	router.Post("/pay-razor", protected(si.PostPayRazor)...)
	router.Post("/verify-razor", protected(si.PostVerifyRazor)...)
}
