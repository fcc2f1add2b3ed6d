package idempotency

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemoryTracker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker()

	assert.False(t, tr.IsKnown(ctx, "evt_1"))
	assert.True(t, tr.MarkProcessing(ctx, "evt_1"))
	assert.True(t, tr.IsKnown(ctx, "evt_1"))

	// processing and completed entries cannot be claimed again
	assert.False(t, tr.MarkProcessing(ctx, "evt_1"))
	tr.MarkCompleted(ctx, "evt_1")
	assert.False(t, tr.MarkProcessing(ctx, "evt_1"))

	e, ok := tr.Get(ctx, "evt_1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, e.Status)
}

func TestMemoryTracker_FailedIsReclaimable(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker()

	require.True(t, tr.MarkProcessing(ctx, "evt_1"))
	tr.MarkFailed(ctx, "evt_1", "store unavailable")

	e, ok := tr.Get(ctx, "evt_1")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, "store unavailable", e.Error)

	assert.True(t, tr.MarkProcessing(ctx, "evt_1"))
	assert.False(t, tr.MarkProcessing(ctx, "evt_1"))
}

func TestMemoryTracker_RetentionWindow(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	tr := NewMemoryTracker(WithClock(clock.Now))

	require.True(t, tr.MarkProcessing(ctx, "evt_1"))
	tr.MarkCompleted(ctx, "evt_1")

	clock.Advance(59 * time.Minute)
	assert.True(t, tr.IsKnown(ctx, "evt_1"))

	clock.Advance(time.Minute)
	assert.False(t, tr.IsKnown(ctx, "evt_1"))
	assert.True(t, tr.MarkProcessing(ctx, "evt_1"))
}

func TestMemoryTracker_EvictExpired(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	tr := NewMemoryTracker(WithClock(clock.Now), WithRetention(10*time.Minute))

	tr.MarkProcessing(ctx, "old_1")
	tr.MarkProcessing(ctx, "old_2")
	clock.Advance(5 * time.Minute)
	tr.MarkProcessing(ctx, "new_1")

	assert.Equal(t, 2, tr.EvictExpired(clock.Now().Add(6*time.Minute)))
	assert.Equal(t, 1, tr.Len())
}

func TestMemoryTracker_MaxEntriesDropsOldest(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	tr := NewMemoryTracker(WithClock(clock.Now), WithMaxEntries(3))

	for i := 0; i < 3; i++ {
		tr.MarkProcessing(ctx, fmt.Sprintf("evt_%d", i))
		clock.Advance(time.Second)
	}
	require.True(t, tr.MarkProcessing(ctx, "evt_3"))

	assert.Equal(t, 3, tr.Len())
	assert.False(t, tr.IsKnown(ctx, "evt_0"))
	assert.True(t, tr.IsKnown(ctx, "evt_3"))
}

func TestMemoryTracker_ConcurrentClaim(t *testing.T) {
	ctx := context.Background()
	tr := NewMemoryTracker()

	var claimed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.MarkProcessing(ctx, "evt_race") {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), claimed.Load())
}

func TestMemoryTracker_StartStop(t *testing.T) {
	tr := NewMemoryTracker(WithRetention(time.Millisecond))
	tr.MarkProcessing(context.Background(), "evt_1")

	tr.Start(5 * time.Millisecond)
	tr.Start(5 * time.Millisecond)
	assert.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, 5*time.Millisecond)
	tr.Stop()
	tr.Stop()
}

func TestFromEnvDefaultsToMemory(t *testing.T) {
	t.Setenv("IDEMPOTENCY_BACKEND", "")
	_, ok := FromEnv().(*MemoryTracker)
	assert.True(t, ok)
}
