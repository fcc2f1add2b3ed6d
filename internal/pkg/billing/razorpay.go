package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

const (
	defaultRazorpayAPIBaseURL = "https://api.razorpay.com/v1"
	defaultCurrency           = "INR"

	OrderStatusPaid = "paid"
)

// OrderRequest creates a gateway order. Amount is in minor currency units.
type OrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// Order mirrors the Razorpay order entity.
type Order struct {
	ID         string `json:"id"`
	Entity     string `json:"entity"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	CreatedAt  int64  `json:"created_at"`
}

// PaymentGateway is the order API the payment service depends on.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
}

type RazorpayClient struct {
	KeyID      string
	KeySecret  string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewRazorpayClientFromEnv() *RazorpayClient {
	return &RazorpayClient{
		KeyID:      strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_ID", "")),
		KeySecret:  strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_SECRET", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("RAZORPAY_API_BASE_URL", defaultRazorpayAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CurrencyFromEnv returns CURRENCY, defaulting to INR.
func CurrencyFromEnv() string {
	return strings.ToUpper(strings.TrimSpace(env.GetEnv("CURRENCY", defaultCurrency)))
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, errors.New("order amount must be positive")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var out Order
	if err := c.do(ctx, http.MethodPost, "/orders", payload, &out); err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	return &out, nil
}

func (c *RazorpayClient) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, errors.New("order id is required")
	}
	var out Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("razorpay fetch order: %w", err)
	}
	return &out, nil
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, payload []byte, out any) error {
	if c.KeyID == "" || c.KeySecret == "" {
		return errors.New("RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET are not configured")
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.APIBaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}
