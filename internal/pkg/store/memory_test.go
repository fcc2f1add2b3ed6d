package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditFox/app/models"
)

func strPtr(s string) *string { return &s }

func newUser(clerkID, email string) *models.User {
	u := &models.User{ClerkID: clerkID, CreditBalance: models.DefaultCreditBalance}
	if email != "" {
		u.Email = strPtr(email)
	}
	return u
}

func TestMemoryStore_CreateEnforcesUniqueKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Users().Create(ctx, newUser("user_1", "a@x.com")))

	err := s.Users().Create(ctx, newUser("user_1", "b@x.com"))
	assert.ErrorIs(t, err, ErrDuplicateKey)

	err = s.Users().Create(ctx, newUser("user_2", "a@x.com"))
	assert.ErrorIs(t, err, ErrDuplicateKey)

	// users without email never clash on email
	require.NoError(t, s.Users().Create(ctx, newUser("user_3", "")))
	require.NoError(t, s.Users().Create(ctx, newUser("user_4", "")))
}

func TestMemoryStore_ConcurrentCreateYieldsOneRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Users().Create(ctx, newUser("user_race", "race@x.com")); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}

func TestMemoryStore_ApplyPatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Users().Create(ctx, newUser("user_1", "a@x.com")))

	updated, err := s.Users().ApplyPatch(ctx, "user_1", "evt_1", models.UserPatch{FirstName: strPtr("Ada")})
	require.NoError(t, err)
	assert.Equal(t, "Ada", *updated.FirstName)
	assert.Equal(t, "a@x.com", *updated.Email)
	assert.True(t, updated.HasProcessed("evt_1"))

	_, err = s.Users().ApplyPatch(ctx, "user_1", "evt_1", models.UserPatch{FirstName: strPtr("Bob")})
	assert.ErrorIs(t, err, ErrEventAlreadyApplied)

	_, err = s.Users().ApplyPatch(ctx, "ghost", "evt_2", models.UserPatch{FirstName: strPtr("Bob")})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.Users().FindByClerkID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", *got.FirstName)
}

func TestMemoryStore_ApplyPatchMovesEmailIndex(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Users().Create(ctx, newUser("user_1", "old@x.com")))
	require.NoError(t, s.Users().Create(ctx, newUser("user_2", "other@x.com")))

	_, err := s.Users().ApplyPatch(ctx, "user_1", "evt_1", models.UserPatch{Email: strPtr("other@x.com")})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	_, err = s.Users().ApplyPatch(ctx, "user_1", "evt_2", models.UserPatch{Email: strPtr("new@x.com")})
	require.NoError(t, err)

	// the old address is free again
	require.NoError(t, s.Users().Create(ctx, newUser("user_3", "old@x.com")))
}

func TestMemoryStore_AddCreditsNeverNegative(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Users().Create(ctx, newUser("user_1", "")))

	balance, err := s.Users().AddCredits(ctx, "user_1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance)

	_, err = s.Users().AddCredits(ctx, "user_1", -16)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	balance, err = s.Users().AddCredits(ctx, "user_1", -15)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	_, err = s.Users().AddCredits(ctx, "ghost", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_MarkPaymentAppliedOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tx := models.NewTransaction("user_1", "Basic", 100, 10, "INR")
	require.NoError(t, s.Transactions().Create(ctx, tx))

	applied, err := s.Transactions().MarkPaymentApplied(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, applied.PaymentApplied)

	_, err = s.Transactions().MarkPaymentApplied(ctx, tx.ID)
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	_, err = s.Transactions().MarkPaymentApplied(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetOrderID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	tx := models.NewTransaction("user_1", "Basic", 100, 10, "INR")
	require.NoError(t, s.Transactions().Create(ctx, tx))

	require.NoError(t, s.Transactions().SetOrderID(ctx, tx.ID, "order_1"))
	got, err := s.Transactions().FindByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "order_1", got.OrderID)

	assert.ErrorIs(t, s.Transactions().SetOrderID(ctx, "missing", "order_2"), ErrNotFound)
}

func TestMemoryStore_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Users().Create(ctx, newUser("user_1", "")))
	tx := models.NewTransaction("user_1", "Basic", 100, 10, "INR")
	require.NoError(t, s.Transactions().Create(ctx, tx))

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context, repos Repositories) error {
		if _, err := repos.Transactions.MarkPaymentApplied(ctx, tx.ID); err != nil {
			return err
		}
		if _, err := repos.Users.AddCredits(ctx, "user_1", 100); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Transactions().FindByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, got.PaymentApplied)

	u, err := s.Users().FindByClerkID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCreditBalance, u.CreditBalance)
}

func TestMemoryStore_DeleteByClerkID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Users().Create(ctx, newUser("user_1", "a@x.com")))

	require.NoError(t, s.Users().DeleteByClerkID(ctx, "user_1"))
	_, err := s.Users().FindByClerkID(ctx, "user_1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Users().DeleteByClerkID(ctx, "user_1"), ErrNotFound)

	require.NoError(t, s.Users().Create(ctx, newUser("user_2", "a@x.com")))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()

	_, err := s.Users().FindByClerkID(ctx, "user_1")
	assert.ErrorIs(t, err, ErrUnavailable)
	err = s.WithTransaction(ctx, func(ctx context.Context, repos Repositories) error { return nil })
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Users().Create(ctx, newUser("user_1", "a@x.com")))

	u, err := s.Users().FindByClerkID(ctx, "user_1")
	require.NoError(t, err)
	u.CreditBalance = 1000
	*u.Email = "mutated@x.com"

	again, err := s.Users().FindByClerkID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCreditBalance, again.CreditBalance)
	assert.Equal(t, "a@x.com", *again.Email)
}

func TestBounded(t *testing.T) {
	ctx, cancel := bounded(context.Background(), DefaultOpTimeout)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.True(t, ok)

	assert.True(t, isTimeout(context.DeadlineExceeded))
	assert.True(t, isTimeout(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.False(t, isTimeout(errors.New("other")))
	assert.Equal(t, DefaultOpTimeout, Options{}.opTimeout())
}
