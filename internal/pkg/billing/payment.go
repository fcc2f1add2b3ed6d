package billing

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CreditFox/internal/pkg/store"
)

// PaymentService runs the purchase flow: order creation and confirmation.
type PaymentService struct {
	store    store.Store
	ledger   *Ledger
	gateway  PaymentGateway
	currency string
}

func NewPaymentService(s store.Store, ledger *Ledger, gateway PaymentGateway, currency string) *PaymentService {
	if strings.TrimSpace(currency) == "" {
		currency = defaultCurrency
	}
	return &PaymentService{store: s, ledger: ledger, gateway: gateway, currency: currency}
}

// CreatePaymentIntent records a pending transaction for planID and opens a
// gateway order whose receipt is the transaction id.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, clerkID, planID string) (*PaymentIntent, error) {
	plan, err := LookupPlan(planID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(clerkID) == "" {
		return nil, apperr.New(apperr.Validation, "clerk id is required")
	}
	if _, err := s.store.Users().FindByClerkID(ctx, clerkID); err != nil {
		return nil, store.RecordError(err, "User", "could not load user")
	}

	tx := models.NewTransaction(clerkID, plan.ID, plan.Credits, plan.Price, s.currency)
	if err := tx.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "invalid transaction", err)
	}
	if err := s.store.Transactions().Create(ctx, tx); err != nil {
		return nil, store.AppError(err, "could not record transaction")
	}

	order, err := s.gateway.CreateOrder(ctx, OrderRequest{
		Amount:   plan.Price * 100,
		Currency: s.currency,
		Receipt:  tx.ID,
	})
	if err != nil {
		log.Errorf("[Payment] Order creation for transaction %s failed: %v", tx.ID, err)
		return nil, apperr.Wrap(apperr.GatewayError, "could not create payment order", err)
	}
	if err := s.store.Transactions().SetOrderID(ctx, tx.ID, order.ID); err != nil {
		return nil, store.AppError(err, "could not record order")
	}

	log.Infof("[Payment] Created order %s for %s (plan=%s, transaction=%s)", order.ID, clerkID, plan.ID, tx.ID)
	return &PaymentIntent{TransactionID: tx.ID, Order: order}, nil
}

// VerifyPayment applies the credits of a paid order owned by clerkID. Confirming
// an order whose credits were already applied is not an error. An order that
// belongs to another user reads as not found.
func (s *PaymentService) VerifyPayment(ctx context.Context, clerkID, orderID string) (*VerifyResult, error) {
	if strings.TrimSpace(clerkID) == "" {
		return nil, apperr.New(apperr.Validation, "clerk id is required")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, apperr.New(apperr.Validation, "order id is required")
	}

	order, err := s.gateway.FetchOrder(ctx, orderID)
	if err != nil {
		log.Errorf("[Payment] Fetching order %s failed: %v", orderID, err)
		return nil, apperr.Wrap(apperr.GatewayError, "could not fetch payment order", err)
	}
	if order.Status != OrderStatusPaid {
		return nil, apperr.Newf(apperr.Validation, "payment not completed (status %s)", order.Status)
	}

	tx, err := s.store.Transactions().FindByID(ctx, order.Receipt)
	if err != nil {
		return nil, store.RecordError(err, "Transaction", "could not load transaction")
	}
	if tx.ClerkID != clerkID {
		log.Warnf("[Payment] %s tried to verify order %s of transaction %s owned by another user", clerkID, orderID, tx.ID)
		return nil, apperr.New(apperr.NotFound, "Transaction not found")
	}
	if tx.OrderID != "" && tx.OrderID != order.ID {
		return nil, apperr.New(apperr.Validation, "order does not belong to transaction")
	}
	if tx.PaymentApplied {
		log.Infof("[Payment] Transaction %s already applied", tx.ID)
		return &VerifyResult{TransactionID: tx.ID, AlreadyProcessed: true}, nil
	}

	balance, err := s.ledger.ApplyTopUp(ctx, tx.ID, tx.Credits)
	if err != nil {
		if apperr.CodeOf(err) == apperr.AlreadyApplied {
			log.Infof("[Payment] Transaction %s applied concurrently", tx.ID)
			return &VerifyResult{TransactionID: tx.ID, AlreadyProcessed: true}, nil
		}
		return nil, err
	}
	return &VerifyResult{TransactionID: tx.ID, NewBalance: balance}, nil
}
