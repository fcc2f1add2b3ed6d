package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CreditFox/internal/pkg/usercontext"
)

// CreditLedger is the part of billing.Ledger the credit endpoints use.
type CreditLedger interface {
	Balance(ctx context.Context, clerkID string) (int64, error)
	SpendCredits(ctx context.Context, clerkID string, amount int64) (int64, error)
}

type CreditController struct {
	ledger CreditLedger
}

func NewCreditController(ledger CreditLedger) *CreditController {
	return &CreditController{ledger: ledger}
}

type spendCreditsRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

// HandleGetCredits returns the caller's balance.
func (cc *CreditController) HandleGetCredits(c *fiber.Ctx) error {
	clerkID := usercontext.GetClerkID(c)
	if clerkID == "" {
		return respondError(c, apperr.New(apperr.VerificationFailed, "Not authorized. Please login again"))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	credits, err := cc.ledger.Balance(ctx, clerkID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "credits": credits})
}

// HandleSpendCredits deducts credits from the caller's balance.
func (cc *CreditController) HandleSpendCredits(c *fiber.Ctx) error {
	clerkID := usercontext.GetClerkID(c)
	if clerkID == "" {
		return respondError(c, apperr.New(apperr.VerificationFailed, "Not authorized. Please login again"))
	}

	var req spendCreditsRequest
	if err := parseRequest(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	credits, err := cc.ledger.SpendCredits(ctx, clerkID, req.Amount)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "credits": credits})
}
