package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditFox/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	webhooks *controllers.WebhookController
	credits  *controllers.CreditController
	payments *controllers.PaymentController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(webhooks *controllers.WebhookController, credits *controllers.CreditController, payments *controllers.PaymentController) *APIServer {
	return &APIServer{webhooks: webhooks, credits: credits, payments: payments}
}

// PostUserWebhook receives Clerk deliveries. Authenticated by signature, not token.
func (s *APIServer) PostUserWebhook(c *fiber.Ctx) error {
	return s.webhooks.HandleUserWebhook(c)
}

func (s *APIServer) GetUserCredits(c *fiber.Ctx) error {
	return s.credits.HandleGetCredits(c)
}

func (s *APIServer) PostSpendCredits(c *fiber.Ctx) error {
	return s.credits.HandleSpendCredits(c)
}

// PostPayRazor creates a Razorpay order for a credit plan.
func (s *APIServer) PostPayRazor(c *fiber.Ctx) error {
	return s.payments.HandlePayRazor(c)
}

// PostVerifyRazor confirms a paid order and credits the user.
func (s *APIServer) PostVerifyRazor(c *fiber.Ctx) error {
	return s.payments.HandleVerifyRazor(c)
}
