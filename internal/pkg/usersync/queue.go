package usersync

import (
	"context"
	"strings"
	"time"

	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

// QueuedJob is a job handed to a worker. ID identifies it in durable queues.
type QueuedJob struct {
	ID  string
	Job Job
}

// Queue carries accepted jobs to the workers.
type Queue interface {
	// Push enqueues job or returns ErrQueueFull / ErrQueueUnavailable.
	Push(ctx context.Context, job Job) error
	// Pop waits up to wait for a job. It returns nil, nil when none arrived. Once
	// ctx is done it only returns jobs that are immediately available.
	Pop(ctx context.Context, wait time.Duration) (*QueuedJob, error)
	// Ack removes a processed job.
	Ack(ctx context.Context, qj *QueuedJob)
	Len(ctx context.Context) int
	// Durable queues keep their jobs when the process stops, so Stop does not
	// drain them.
	Durable() bool
}

// QueueFromEnv builds the queue named by WEBHOOK_QUEUE_BACKEND (default memory).
func QueueFromEnv(size int) Queue {
	switch strings.ToLower(strings.TrimSpace(env.GetEnv("WEBHOOK_QUEUE_BACKEND", QueueBackendMemory))) {
	case QueueBackendRedis:
		return NewRedisQueue(cache.GetClient(), size)
	default:
		return NewMemoryQueue(size)
	}
}

// MemoryQueue is a bounded in-process queue. Jobs are lost on restart.
type MemoryQueue struct {
	jobs chan Job
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &MemoryQueue{jobs: make(chan Job, size)}
}

func (q *MemoryQueue) Push(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Pop(ctx context.Context, wait time.Duration) (*QueuedJob, error) {
	select {
	case job := <-q.jobs:
		return &QueuedJob{Job: job}, nil
	default:
	}
	if ctx.Err() != nil {
		return nil, nil
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case job := <-q.jobs:
		return &QueuedJob{Job: job}, nil
	case <-ctx.Done():
		select {
		case job := <-q.jobs:
			return &QueuedJob{Job: job}, nil
		default:
			return nil, nil
		}
	case <-t.C:
		return nil, nil
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, qj *QueuedJob) {}

func (q *MemoryQueue) Len(ctx context.Context) int {
	return len(q.jobs)
}

func (q *MemoryQueue) Durable() bool {
	return false
}
