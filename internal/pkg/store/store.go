package store

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// DefaultOpTimeout bounds every store call that arrives without a tighter deadline.
const DefaultOpTimeout = 5 * time.Second

var (
	ErrNotFound            = errors.New("store: record not found")
	ErrDuplicateKey        = errors.New("store: duplicate key")
	ErrAlreadyApplied      = errors.New("store: payment already applied")
	ErrEventAlreadyApplied = errors.New("store: event already applied to record")
	ErrInsufficientCredits = errors.New("store: insufficient credits")
	ErrUnavailable         = errors.New("store: unavailable")
)

// UserRepository holds the user mutations used by the reconciler and the ledger.
type UserRepository interface {
	FindByClerkID(ctx context.Context, clerkID string) (*models.User, error)
	// Create inserts user. A clash on clerk id or email returns ErrDuplicateKey.
	Create(ctx context.Context, user *models.User) error
	// ApplyPatch updates the present patch fields and records eventID on the record.
	// Returns ErrNotFound or ErrEventAlreadyApplied.
	ApplyPatch(ctx context.Context, clerkID, eventID string, patch models.UserPatch) (*models.User, error)
	DeleteByClerkID(ctx context.Context, clerkID string) error
	// AddCredits atomically adds delta to the balance unless the result would be
	// negative (ErrInsufficientCredits). Returns the new balance.
	AddCredits(ctx context.Context, clerkID string, delta int64) (int64, error)
}

// TransactionRepository holds credit purchase records.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	SetOrderID(ctx context.Context, id, orderID string) error
	// MarkPaymentApplied flips payment from false to true in one conditional write.
	// Returns ErrNotFound or ErrAlreadyApplied when the flip did not happen.
	MarkPaymentApplied(ctx context.Context, id string) (*models.Transaction, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Users        UserRepository
	Transactions TransactionRepository
}

// TxFunc runs inside a store transaction. It must use the ctx and repositories it
// is given; returning an error rolls the transaction back.
type TxFunc func(ctx context.Context, repos Repositories) error

// Store is the record store shared by webhook ingestion and the payment flow.
type Store interface {
	Users() UserRepository
	Transactions() TransactionRepository
	WithTransaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Atomicity is implemented by stores whose WithTransaction may not be atomic.
type Atomicity interface {
	Atomic() bool
}

// IsAtomic reports whether a TxFunc on s commits or rolls back as one unit.
// Stores that do not implement Atomicity are treated as atomic.
func IsAtomic(s Store) bool {
	if a, ok := s.(Atomicity); ok {
		return a.Atomic()
	}
	return true
}

// Options configures a store backend.
type Options struct {
	OpTimeout time.Duration
}

func (o Options) opTimeout() time.Duration {
	if o.OpTimeout <= 0 {
		return DefaultOpTimeout
	}
	return o.OpTimeout
}

// bounded derives a context carrying the op deadline unless ctx already has a
// tighter one.
func bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// isTimeout reports context expiry, which the store reports as ErrUnavailable.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
