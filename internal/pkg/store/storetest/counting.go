// Package storetest provides store wrappers for tests.
package storetest

import (
	"context"
	"sync/atomic"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/store"
)

// CountingStore wraps a store and counts every repository and transaction call.
type CountingStore struct {
	inner store.Store
	calls atomic.Int64
}

func NewCountingStore(inner store.Store) *CountingStore {
	return &CountingStore{inner: inner}
}

// Calls returns the number of store calls made so far.
func (s *CountingStore) Calls() int64 {
	return s.calls.Load()
}

func (s *CountingStore) Users() store.UserRepository {
	return &countingUsers{inner: s.inner.Users(), calls: &s.calls}
}

func (s *CountingStore) Transactions() store.TransactionRepository {
	return &countingTransactions{inner: s.inner.Transactions(), calls: &s.calls}
}

func (s *CountingStore) WithTransaction(ctx context.Context, fn store.TxFunc) error {
	s.calls.Add(1)
	return s.inner.WithTransaction(ctx, func(ctx context.Context, repos store.Repositories) error {
		return fn(ctx, store.Repositories{
			Users:        &countingUsers{inner: repos.Users, calls: &s.calls},
			Transactions: &countingTransactions{inner: repos.Transactions, calls: &s.calls},
		})
	})
}

func (s *CountingStore) Atomic() bool {
	return store.IsAtomic(s.inner)
}

func (s *CountingStore) Ping(ctx context.Context) error {
	s.calls.Add(1)
	return s.inner.Ping(ctx)
}

func (s *CountingStore) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}

type countingUsers struct {
	inner store.UserRepository
	calls *atomic.Int64
}

func (r *countingUsers) FindByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	r.calls.Add(1)
	return r.inner.FindByClerkID(ctx, clerkID)
}

func (r *countingUsers) Create(ctx context.Context, user *models.User) error {
	r.calls.Add(1)
	return r.inner.Create(ctx, user)
}

func (r *countingUsers) ApplyPatch(ctx context.Context, clerkID, eventID string, patch models.UserPatch) (*models.User, error) {
	r.calls.Add(1)
	return r.inner.ApplyPatch(ctx, clerkID, eventID, patch)
}

func (r *countingUsers) DeleteByClerkID(ctx context.Context, clerkID string) error {
	r.calls.Add(1)
	return r.inner.DeleteByClerkID(ctx, clerkID)
}

func (r *countingUsers) AddCredits(ctx context.Context, clerkID string, delta int64) (int64, error) {
	r.calls.Add(1)
	return r.inner.AddCredits(ctx, clerkID, delta)
}

type countingTransactions struct {
	inner store.TransactionRepository
	calls *atomic.Int64
}

func (r *countingTransactions) Create(ctx context.Context, tx *models.Transaction) error {
	r.calls.Add(1)
	return r.inner.Create(ctx, tx)
}

func (r *countingTransactions) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	r.calls.Add(1)
	return r.inner.FindByID(ctx, id)
}

func (r *countingTransactions) SetOrderID(ctx context.Context, id, orderID string) error {
	r.calls.Add(1)
	return r.inner.SetOrderID(ctx, id, orderID)
}

func (r *countingTransactions) MarkPaymentApplied(ctx context.Context, id string) (*models.Transaction, error) {
	r.calls.Add(1)
	return r.inner.MarkPaymentApplied(ctx, id)
}
