package billing

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
	"github.com/ManuelReschke/CreditFox/internal/pkg/store"
)

// Ledger owns every mutation of a user's credit balance.
type Ledger struct {
	store          store.Store
	initialCredits int64
}

func NewLedger(s store.Store, initialCredits int64) *Ledger {
	if initialCredits < 0 {
		initialCredits = 0
	}
	return &Ledger{store: s, initialCredits: initialCredits}
}

// NewLedgerFromEnv reads INITIAL_CREDITS, defaulting to models.DefaultCreditBalance.
func NewLedgerFromEnv(s store.Store) *Ledger {
	return NewLedger(s, int64(env.GetEnvInt("INITIAL_CREDITS", int(models.DefaultCreditBalance))))
}

// GrantInitialCredits sets the balance of a user that is about to be inserted.
func (l *Ledger) GrantInitialCredits(u *models.User) {
	u.CreditBalance = l.initialCredits
}

// ApplyTopUp marks the transaction paid and credits its owner in one store
// transaction. A transaction that was already applied yields AlreadyApplied.
func (l *Ledger) ApplyTopUp(ctx context.Context, transactionID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, apperr.New(apperr.Validation, "top-up amount must not be negative")
	}
	if strings.TrimSpace(transactionID) == "" {
		return 0, apperr.New(apperr.Validation, "transaction id is required")
	}
	if !store.IsAtomic(l.store) {
		log.Errorf("[Ledger] Refusing top-up of transaction %s: store transactions are disabled", transactionID)
		return 0, apperr.New(apperr.StoreUnavailable, "top-up requires a transactional store")
	}

	var balance int64
	err := l.store.WithTransaction(ctx, func(ctx context.Context, repos store.Repositories) error {
		tx, err := repos.Transactions.MarkPaymentApplied(ctx, transactionID)
		if err != nil {
			return store.RecordError(err, "Transaction", "could not mark transaction paid")
		}
		balance, err = repos.Users.AddCredits(ctx, tx.ClerkID, amount)
		if err != nil {
			return store.RecordError(err, "User", "could not update balance")
		}
		return nil
	})
	if err != nil {
		if apperr.CodeOf(err) != apperr.AlreadyApplied {
			log.Errorf("[Ledger] Top-up of transaction %s failed: %v", transactionID, err)
		}
		return 0, store.AppError(err, "top-up failed")
	}
	log.Infof("[Ledger] Applied transaction %s: +%d credits, balance %d", transactionID, amount, balance)
	return balance, nil
}

func (l *Ledger) Balance(ctx context.Context, clerkID string) (int64, error) {
	u, err := l.store.Users().FindByClerkID(ctx, clerkID)
	if err != nil {
		return 0, store.RecordError(err, "User", "could not read balance")
	}
	return u.CreditBalance, nil
}

// SpendCredits deducts amount unless the balance would go negative.
func (l *Ledger) SpendCredits(ctx context.Context, clerkID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, apperr.New(apperr.Validation, "amount must be positive")
	}
	balance, err := l.store.Users().AddCredits(ctx, clerkID, -amount)
	if err != nil {
		return 0, store.RecordError(err, "User", "could not update balance")
	}
	return balance, nil
}
