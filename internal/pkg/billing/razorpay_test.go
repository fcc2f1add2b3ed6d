package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRazorpay(t *testing.T, handler http.HandlerFunc) *RazorpayClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &RazorpayClient{
		KeyID:      "rzp_test_key",
		KeySecret:  "rzp_test_secret",
		APIBaseURL: srv.URL + "/v1",
		HTTPClient: srv.Client(),
	}
}

func TestRazorpayClient_CreateOrder(t *testing.T) {
	c := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		var req OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(1000), req.Amount)
		assert.Equal(t, "INR", req.Currency)
		assert.Equal(t, "tx_1", req.Receipt)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_1","entity":"order","amount":1000,"currency":"INR","receipt":"tx_1","status":"created"}`))
	})

	order, err := c.CreateOrder(context.Background(), OrderRequest{Amount: 1000, Currency: "INR", Receipt: "tx_1"})
	require.NoError(t, err)
	assert.Equal(t, "order_1", order.ID)
	assert.Equal(t, "created", order.Status)
}

func TestRazorpayClient_FetchOrder(t *testing.T) {
	c := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/orders/order_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"order_1","receipt":"tx_1","status":"paid","amount_paid":1000}`))
	})

	order, err := c.FetchOrder(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPaid, order.Status)
	assert.Equal(t, "tx_1", order.Receipt)
	assert.Equal(t, int64(1000), order.AmountPaid)
}

func TestRazorpayClient_Errors(t *testing.T) {
	c := newTestRazorpay(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR"}}`))
	})

	_, err := c.FetchOrder(context.Background(), "order_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")

	_, err = c.FetchOrder(context.Background(), " ")
	assert.Error(t, err)
	_, err = c.CreateOrder(context.Background(), OrderRequest{Amount: 0})
	assert.Error(t, err)

	unconfigured := &RazorpayClient{APIBaseURL: "http://127.0.0.1:1"}
	_, err = unconfigured.FetchOrder(context.Background(), "order_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestCurrencyFromEnv(t *testing.T) {
	t.Setenv("CURRENCY", "")
	assert.Equal(t, "INR", CurrencyFromEnv())
	t.Setenv("CURRENCY", "usd")
	assert.Equal(t, "USD", CurrencyFromEnv())
}
