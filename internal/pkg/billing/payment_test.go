package billing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CreditFox/internal/pkg/store"
	"github.com/ManuelReschke/CreditFox/internal/pkg/store/storetest"
)

type fakeGateway struct {
	mu        sync.Mutex
	orders    map[string]*Order
	created   []OrderRequest
	createErr error
	fetchErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{orders: make(map[string]*Order)}
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	o := &Order{ID: "order_" + req.Receipt, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}
	g.orders[o.ID] = o
	return o, nil
}

func (g *fakeGateway) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	o, ok := g.orders[orderID]
	if !ok {
		return nil, errors.New("status=400 body=not found")
	}
	c := *o
	return &c, nil
}

func (g *fakeGateway) markPaid(orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[orderID].Status = OrderStatusPaid
}

func newPaymentFixture(t *testing.T) (*PaymentService, *fakeGateway, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	ledger := NewLedger(s, 5)
	seedUser(t, s, ledger, "user_1")
	gw := newFakeGateway()
	return NewPaymentService(s, ledger, gw, "INR"), gw, s
}

func TestCreatePaymentIntent(t *testing.T) {
	ctx := context.Background()
	svc, gw, s := newPaymentFixture(t)

	intent, err := svc.CreatePaymentIntent(ctx, "user_1", "advanced")
	require.NoError(t, err)
	require.Len(t, gw.created, 1)
	assert.Equal(t, int64(5000), gw.created[0].Amount)
	assert.Equal(t, "INR", gw.created[0].Currency)
	assert.Equal(t, intent.TransactionID, gw.created[0].Receipt)

	tx, err := s.Transactions().FindByID(ctx, intent.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, PlanAdvanced, tx.Plan)
	assert.Equal(t, int64(500), tx.Credits)
	assert.Equal(t, int64(50), tx.Amount)
	assert.Equal(t, intent.Order.ID, tx.OrderID)
	assert.False(t, tx.PaymentApplied)
}

func TestCreatePaymentIntent_InvalidPlanPersistsNothing(t *testing.T) {
	counting := storetest.NewCountingStore(store.NewMemoryStore())
	gw := newFakeGateway()
	svc := NewPaymentService(counting, NewLedger(counting, 5), gw, "INR")

	_, err := svc.CreatePaymentIntent(context.Background(), "user_1", "Gold")
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.CodeOf(err))
	assert.Zero(t, counting.Calls())
	assert.Empty(t, gw.created)
}

func TestCreatePaymentIntent_Errors(t *testing.T) {
	ctx := context.Background()
	svc, gw, _ := newPaymentFixture(t)

	_, err := svc.CreatePaymentIntent(ctx, "ghost", PlanBasic)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))

	gw.createErr = errors.New("connection refused")
	_, err = svc.CreatePaymentIntent(ctx, "user_1", PlanBasic)
	assert.Equal(t, apperr.GatewayError, apperr.CodeOf(err))
}

func TestVerifyPayment(t *testing.T) {
	ctx := context.Background()
	svc, gw, _ := newPaymentFixture(t)

	intent, err := svc.CreatePaymentIntent(ctx, "user_1", PlanBasic)
	require.NoError(t, err)

	_, err = svc.VerifyPayment(ctx, "user_1", intent.Order.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.CodeOf(err))

	gw.markPaid(intent.Order.ID)
	res, err := svc.VerifyPayment(ctx, "user_1", intent.Order.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, int64(105), res.NewBalance)

	// second confirmation is benign and leaves the balance alone
	res, err = svc.VerifyPayment(ctx, "user_1", intent.Order.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)

	balance, err := svc.ledger.Balance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(105), balance)
}

func TestVerifyPayment_ConcurrentConfirmations(t *testing.T) {
	ctx := context.Background()
	svc, gw, _ := newPaymentFixture(t)

	intent, err := svc.CreatePaymentIntent(ctx, "user_1", PlanBasic)
	require.NoError(t, err)
	gw.markPaid(intent.Order.ID)

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.VerifyPayment(ctx, "user_1", intent.Order.ID)
			if assert.NoError(t, err) && !res.AlreadyProcessed {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	balance, err := svc.ledger.Balance(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(105), balance)
}

func TestVerifyPayment_Errors(t *testing.T) {
	ctx := context.Background()
	svc, gw, _ := newPaymentFixture(t)

	_, err := svc.VerifyPayment(ctx, "user_1", "")
	assert.Equal(t, apperr.Validation, apperr.CodeOf(err))

	_, err = svc.VerifyPayment(ctx, "user_1", "order_unknown")
	assert.Equal(t, apperr.GatewayError, apperr.CodeOf(err))

	gw.orders["order_orphan"] = &Order{ID: "order_orphan", Receipt: "no-such-tx", Status: OrderStatusPaid}
	_, err = svc.VerifyPayment(ctx, "user_1", "order_orphan")
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestVerifyPayment_RejectsOtherUsersOrder(t *testing.T) {
	ctx := context.Background()
	svc, gw, s := newPaymentFixture(t)
	seedUser(t, s, svc.ledger, "user_2")

	intent, err := svc.CreatePaymentIntent(ctx, "user_1", PlanBasic)
	require.NoError(t, err)
	gw.markPaid(intent.Order.ID)

	_, err = svc.VerifyPayment(ctx, "user_2", intent.Order.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))

	_, err = svc.VerifyPayment(ctx, "", intent.Order.ID)
	assert.Equal(t, apperr.Validation, apperr.CodeOf(err))

	tx, err := s.Transactions().FindByID(ctx, intent.TransactionID)
	require.NoError(t, err)
	assert.False(t, tx.PaymentApplied)
	for clerkID, want := range map[string]int64{"user_1": 5, "user_2": 5} {
		balance, err := svc.ledger.Balance(ctx, clerkID)
		require.NoError(t, err)
		assert.Equal(t, want, balance, clerkID)
	}

	res, err := svc.VerifyPayment(ctx, "user_1", intent.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(105), res.NewBalance)
}
