package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CreditFox/internal/pkg/billing"
	"github.com/ManuelReschke/CreditFox/internal/pkg/usercontext"
)

// Payments is the purchase flow behind the Razorpay endpoints.
type Payments interface {
	CreatePaymentIntent(ctx context.Context, clerkID, planID string) (*billing.PaymentIntent, error)
	VerifyPayment(ctx context.Context, clerkID, orderID string) (*billing.VerifyResult, error)
}

type PaymentController struct {
	payments Payments
}

func NewPaymentController(payments Payments) *PaymentController {
	return &PaymentController{payments: payments}
}

type payRazorRequest struct {
	PlanID string `json:"planId" validate:"required"`
}

type verifyRazorRequest struct {
	RazorpayOrderID string `json:"razorpay_order_id" validate:"required_without=OrderID"`
	OrderID         string `json:"orderId" validate:"required_without=RazorpayOrderID"`
}

func (r verifyRazorRequest) orderID() string {
	if r.RazorpayOrderID != "" {
		return r.RazorpayOrderID
	}
	return r.OrderID
}

// HandlePayRazor opens a gateway order for the requested plan.
func (pc *PaymentController) HandlePayRazor(c *fiber.Ctx) error {
	clerkID := usercontext.GetClerkID(c)
	if clerkID == "" {
		return respondError(c, apperr.New(apperr.VerificationFailed, "Not authorized. Please login again"))
	}

	var req payRazorRequest
	if err := parseRequest(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	intent, err := pc.payments.CreatePaymentIntent(ctx, clerkID, req.PlanID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"order":         intent.Order,
		"transactionId": intent.TransactionID,
	})
}

// HandleVerifyRazor confirms a paid order and credits the purchase.
func (pc *PaymentController) HandleVerifyRazor(c *fiber.Ctx) error {
	clerkID := usercontext.GetClerkID(c)
	if clerkID == "" {
		return respondError(c, apperr.New(apperr.VerificationFailed, "Not authorized. Please login again"))
	}

	var req verifyRazorRequest
	if err := parseRequest(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	res, err := pc.payments.VerifyPayment(ctx, clerkID, req.orderID())
	if err != nil {
		return respondError(c, err)
	}
	if res.AlreadyProcessed {
		return c.JSON(fiber.Map{
			"success":          true,
			"alreadyProcessed": true,
			"message":          "Payment already processed",
		})
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Credits Added",
		"newBalance": res.NewBalance,
	})
}
