package usersync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditFox/internal/pkg/clerk"
	"github.com/ManuelReschke/CreditFox/internal/pkg/store"
)

type processorFunc func(ctx context.Context, eventID string, evt *clerk.Event) (Outcome, error)

func (f processorFunc) Reconcile(ctx context.Context, eventID string, evt *clerk.Event) (Outcome, error) {
	return f(ctx, eventID, evt)
}

func TestNewDispatcherDefaults(t *testing.T) {
	d := NewDispatcher(processorFunc(nil), DispatcherConfig{})
	assert.Equal(t, DefaultWorkers, d.cfg.Workers)
	assert.Equal(t, DefaultQueueSize, d.cfg.QueueSize)
	assert.Equal(t, DefaultJobTimeout, d.cfg.JobTimeout)
}

func TestDispatcher_ProcessesJobs(t *testing.T) {
	s := store.NewMemoryStore()
	r, _, _ := newFixture(s)

	results := make(chan Result, 4)
	d := NewDispatcher(r, DispatcherConfig{Workers: 2, QueueSize: 4, OnResult: func(res Result) { results <- res }})
	d.Start()
	defer d.Stop()

	require.NoError(t, d.Submit(Job{EventID: "msg_1", Event: createdEvent("user_1")}))

	select {
	case res := <-results:
		require.NoError(t, res.Err)
		assert.Equal(t, OutcomeCreated, res.Outcome)
		assert.Equal(t, "msg_1", res.Job.EventID)
		assert.False(t, res.Job.ReceivedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}

	_, err := s.Users().FindByClerkID(context.Background(), "user_1")
	assert.NoError(t, err)
}

func TestDispatcher_QueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p := processorFunc(func(ctx context.Context, eventID string, evt *clerk.Event) (Outcome, error) {
		started <- struct{}{}
		<-release
		return OutcomeUnhandled, nil
	})
	d := NewDispatcher(p, DispatcherConfig{Workers: 1, QueueSize: 1})
	d.Start()

	require.NoError(t, d.Submit(Job{EventID: "a"}))
	<-started
	require.NoError(t, d.Submit(Job{EventID: "b"}))
	assert.ErrorIs(t, d.Submit(Job{EventID: "c"}), ErrQueueFull)
	assert.Equal(t, 1, d.Pending())

	close(release)
	d.Stop()
}

func TestDispatcher_StopDrainsQueue(t *testing.T) {
	var processed atomic.Int32
	p := processorFunc(func(ctx context.Context, eventID string, evt *clerk.Event) (Outcome, error) {
		time.Sleep(5 * time.Millisecond)
		processed.Add(1)
		return OutcomeUnhandled, nil
	})
	d := NewDispatcher(p, DispatcherConfig{Workers: 1, QueueSize: 10})
	d.Start()
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Submit(Job{EventID: "evt"}))
	}
	d.Stop()

	assert.Equal(t, int32(5), processed.Load())
	assert.ErrorIs(t, d.Submit(Job{EventID: "late"}), ErrStopped)
	d.Stop()
}

func TestDispatcher_JobDeadlineAndErrors(t *testing.T) {
	var mu sync.Mutex
	var results []Result
	p := processorFunc(func(ctx context.Context, eventID string, evt *clerk.Event) (Outcome, error) {
		deadline, ok := ctx.Deadline()
		if !ok || time.Until(deadline) > time.Second {
			return "", errors.New("missing job deadline")
		}
		if eventID == "panic" {
			panic("boom")
		}
		return "", errors.New("store down")
	})
	d := NewDispatcher(p, DispatcherConfig{Workers: 1, QueueSize: 2, JobTimeout: 500 * time.Millisecond, OnResult: func(res Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	}})
	d.Start()
	require.NoError(t, d.Submit(Job{EventID: "fail"}))
	require.NoError(t, d.Submit(Job{EventID: "panic"}))
	d.Stop()

	require.Len(t, results, 2)
	assert.EqualError(t, results[0].Err, "store down")
	assert.EqualError(t, results[1].Err, "panic while processing event")
}

func TestSubmitBeforeStart(t *testing.T) {
	d := NewDispatcher(processorFunc(nil), DispatcherConfig{})
	assert.ErrorIs(t, d.Submit(Job{EventID: "x"}), ErrStopped)
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcher_StopReturnsPromptlyWhenIdle(t *testing.T) {
	d := NewDispatcher(processorFunc(nil), DispatcherConfig{Workers: 2, PollInterval: time.Hour})
	d.Start()

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on idle workers")
	}
}
