package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

type MemoryOption func(*MemoryTracker)

func WithRetention(d time.Duration) MemoryOption {
	return func(t *MemoryTracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

func WithMaxEntries(n int) MemoryOption {
	return func(t *MemoryTracker) {
		if n > 0 {
			t.maxEntries = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(t *MemoryTracker) {
		if now != nil {
			t.now = now
		}
	}
}

// MemoryTracker keeps entries in a mutex guarded map. Expired entries are
// removed on every tracking call; Start adds a periodic sweep on top.
type MemoryTracker struct {
	mu         sync.Mutex
	entries    map[string]Entry
	retention  time.Duration
	maxEntries int
	now        func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

func NewMemoryTracker(opts ...MemoryOption) *MemoryTracker {
	t := &MemoryTracker{
		entries:    make(map[string]Entry),
		retention:  DefaultRetention,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *MemoryTracker) IsKnown(ctx context.Context, eventID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(t.now())
	_, ok := t.entries[eventID]
	return ok
}

func (t *MemoryTracker) MarkProcessing(ctx context.Context, eventID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.evictLocked(now)

	if e, ok := t.entries[eventID]; ok && e.Status != StatusFailed {
		return false
	}
	if _, ok := t.entries[eventID]; !ok && len(t.entries) >= t.maxEntries {
		t.dropOldestLocked()
	}
	t.entries[eventID] = Entry{Status: StatusProcessing, Timestamp: now}
	return true
}

func (t *MemoryTracker) MarkCompleted(ctx context.Context, eventID string) {
	t.set(eventID, StatusCompleted, "")
}

func (t *MemoryTracker) MarkFailed(ctx context.Context, eventID string, reason string) {
	t.set(eventID, StatusFailed, reason)
}

func (t *MemoryTracker) Get(ctx context.Context, eventID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictLocked(t.now())
	e, ok := t.entries[eventID]
	return e, ok
}

func (t *MemoryTracker) EvictExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evictLocked(now)
}

// Len returns the number of tracked entries, expired ones included.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *MemoryTracker) set(eventID string, status Status, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.evictLocked(now)
	if _, ok := t.entries[eventID]; !ok && len(t.entries) >= t.maxEntries {
		t.dropOldestLocked()
	}
	t.entries[eventID] = Entry{Status: status, Timestamp: now, Error: reason}
}

func (t *MemoryTracker) evictLocked(now time.Time) int {
	removed := 0
	for id, e := range t.entries {
		if now.Sub(e.Timestamp) >= t.retention {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

func (t *MemoryTracker) dropOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, e := range t.entries {
		if oldestID == "" || e.Timestamp.Before(oldest) {
			oldestID, oldest = id, e.Timestamp
		}
	}
	if oldestID != "" {
		delete(t.entries, oldestID)
	}
}

// Start runs EvictExpired every interval until Stop is called.
func (t *MemoryTracker) Start(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	t.running = true
	t.stopCh = make(chan struct{})

	t.wg.Add(1)
	go func(stopCh <-chan struct{}) {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if n := t.EvictExpired(t.now()); n > 0 {
					log.Debugf("[Idempotency] Evicted %d expired entries", n)
				}
			}
		}
	}(t.stopCh)
}

func (t *MemoryTracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	t.mu.Unlock()
	t.wg.Wait()
}
