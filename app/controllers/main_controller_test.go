package controllers

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditFox/internal/pkg/store"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHandleIndex(t *testing.T) {
	app := fiber.New()
	app.Get("/", HandleIndex)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "API working", string(body))
}

func TestHandleHealth(t *testing.T) {
	app := fiber.New()
	app.Get("/ok", NewHealthController(store.NewMemoryStore()).HandleHealth)
	app.Get("/down", NewHealthController(pingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	})).HandleHealth)

	status, out := doJSON(t, app, fiber.MethodGet, "/ok", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, out["ok"])

	status, out = doJSON(t, app, fiber.MethodGet, "/down", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, false, out["ok"])
}
