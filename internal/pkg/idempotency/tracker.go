package idempotency

import (
	"context"
	"strings"
	"time"

	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

const (
	DefaultRetention  = time.Hour
	DefaultMaxEntries = 100000
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Entry is the tracked state of one webhook event.
type Entry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Tracker remembers recently seen event ids. It is advisory: the record store
// stays the authority on whether an event was applied.
type Tracker interface {
	IsKnown(ctx context.Context, eventID string) bool
	// MarkProcessing claims eventID. It returns false when the event is already
	// processing or completed. Failed events can be claimed again.
	MarkProcessing(ctx context.Context, eventID string) bool
	MarkCompleted(ctx context.Context, eventID string)
	MarkFailed(ctx context.Context, eventID string, reason string)
	Get(ctx context.Context, eventID string) (Entry, bool)
	// EvictExpired drops entries older than the retention window and returns
	// how many were removed.
	EvictExpired(now time.Time) int
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// FromEnv builds the tracker named by IDEMPOTENCY_BACKEND (default memory).
func FromEnv() Tracker {
	switch strings.ToLower(strings.TrimSpace(env.GetEnv("IDEMPOTENCY_BACKEND", BackendMemory))) {
	case BackendRedis:
		return NewRedisTracker(cache.GetClient(), DefaultRetention)
	default:
		return NewMemoryTracker()
	}
}
