package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
)

type memoryState struct {
	users  map[string]*models.User // by clerk id
	emails map[string]string       // email -> clerk id
	txns   map[string]*models.Transaction
	nextID uint
}

func newMemoryState() *memoryState {
	return &memoryState{
		users:  make(map[string]*models.User),
		emails: make(map[string]string),
		txns:   make(map[string]*models.Transaction),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		users:  make(map[string]*models.User, len(s.users)),
		emails: make(map[string]string, len(s.emails)),
		txns:   make(map[string]*models.Transaction, len(s.txns)),
		nextID: s.nextID,
	}
	for k, v := range s.users {
		c.users[k] = v.Clone()
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.txns {
		c.txns[k] = v.Clone()
	}
	return c
}

// MemoryStore keeps all records in process memory. Transactions are serialized
// and applied copy-on-write, so a failed TxFunc leaves no trace.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (s *MemoryStore) Users() UserRepository {
	return &memoryUsers{store: s}
}

func (s *MemoryStore) Transactions() TransactionRepository {
	return &memoryTransactions{store: s}
}

func (s *MemoryStore) WithTransaction(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	repos := Repositories{
		Users:        &memoryUsers{state: work},
		Transactions: &memoryTransactions{state: work},
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// lockState runs fn against the live state. Repositories handed out inside a
// transaction carry their own state and skip the lock.
func lockState(store *MemoryStore, state *memoryState, fn func(st *memoryState) error) error {
	if state != nil {
		return fn(state)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	return fn(store.state)
}

type memoryUsers struct {
	store *MemoryStore
	state *memoryState
}

func (r *memoryUsers) FindByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var out *models.User
	err := lockState(r.store, r.state, func(st *memoryState) error {
		u, ok := st.users[clerkID]
		if !ok {
			return ErrNotFound
		}
		out = u.Clone()
		return nil
	})
	return out, err
}

func (r *memoryUsers) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return lockState(r.store, r.state, func(st *memoryState) error {
		if _, ok := st.users[user.ClerkID]; ok {
			return fmt.Errorf("%w: clerk_id %s", ErrDuplicateKey, user.ClerkID)
		}
		if user.Email != nil {
			if _, ok := st.emails[*user.Email]; ok {
				return fmt.Errorf("%w: email", ErrDuplicateKey)
			}
		}
		now := time.Now().UTC()
		st.nextID++
		user.ID = st.nextID
		user.CreatedAt = now
		user.UpdatedAt = now
		st.users[user.ClerkID] = user.Clone()
		if user.Email != nil {
			st.emails[*user.Email] = user.ClerkID
		}
		return nil
	})
}

func (r *memoryUsers) ApplyPatch(ctx context.Context, clerkID, eventID string, patch models.UserPatch) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var out *models.User
	err := lockState(r.store, r.state, func(st *memoryState) error {
		u, ok := st.users[clerkID]
		if !ok {
			return ErrNotFound
		}
		if u.HasProcessed(eventID) {
			return ErrEventAlreadyApplied
		}
		if patch.Email != nil && (u.Email == nil || *u.Email != *patch.Email) {
			if owner, taken := st.emails[*patch.Email]; taken && owner != clerkID {
				return fmt.Errorf("%w: email", ErrDuplicateKey)
			}
		}
		updated := u.Clone()
		patch.Apply(updated)
		updated.MarkProcessed(eventID)
		updated.UpdatedAt = time.Now().UTC()

		if u.Email != nil && (updated.Email == nil || *updated.Email != *u.Email) {
			delete(st.emails, *u.Email)
		}
		if updated.Email != nil {
			st.emails[*updated.Email] = clerkID
		}
		st.users[clerkID] = updated
		out = updated.Clone()
		return nil
	})
	return out, err
}

func (r *memoryUsers) DeleteByClerkID(ctx context.Context, clerkID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return lockState(r.store, r.state, func(st *memoryState) error {
		u, ok := st.users[clerkID]
		if !ok {
			return ErrNotFound
		}
		if u.Email != nil {
			delete(st.emails, *u.Email)
		}
		delete(st.users, clerkID)
		return nil
	})
}

func (r *memoryUsers) AddCredits(ctx context.Context, clerkID string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var balance int64
	err := lockState(r.store, r.state, func(st *memoryState) error {
		u, ok := st.users[clerkID]
		if !ok {
			return ErrNotFound
		}
		if u.CreditBalance+delta < 0 {
			return ErrInsufficientCredits
		}
		u.CreditBalance += delta
		u.UpdatedAt = time.Now().UTC()
		balance = u.CreditBalance
		return nil
	})
	return balance, err
}

type memoryTransactions struct {
	store *MemoryStore
	state *memoryState
}

func (r *memoryTransactions) Create(ctx context.Context, tx *models.Transaction) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return lockState(r.store, r.state, func(st *memoryState) error {
		if _, ok := st.txns[tx.ID]; ok {
			return fmt.Errorf("%w: transaction %s", ErrDuplicateKey, tx.ID)
		}
		st.txns[tx.ID] = tx.Clone()
		return nil
	})
}

func (r *memoryTransactions) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var out *models.Transaction
	err := lockState(r.store, r.state, func(st *memoryState) error {
		tx, ok := st.txns[id]
		if !ok {
			return ErrNotFound
		}
		out = tx.Clone()
		return nil
	})
	return out, err
}

func (r *memoryTransactions) SetOrderID(ctx context.Context, id, orderID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return lockState(r.store, r.state, func(st *memoryState) error {
		tx, ok := st.txns[id]
		if !ok {
			return ErrNotFound
		}
		tx.OrderID = orderID
		return nil
	})
}

func (r *memoryTransactions) MarkPaymentApplied(ctx context.Context, id string) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var out *models.Transaction
	err := lockState(r.store, r.state, func(st *memoryState) error {
		tx, ok := st.txns[id]
		if !ok {
			return ErrNotFound
		}
		if tx.PaymentApplied {
			return ErrAlreadyApplied
		}
		tx.PaymentApplied = true
		out = tx.Clone()
		return nil
	})
	return out, err
}
