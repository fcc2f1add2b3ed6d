package usersync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CreditFox/internal/pkg/clerk"
)

const (
	DefaultQueueNamespace = "webhook"

	// JobTTL bounds how long an accepted event may wait in Redis.
	JobTTL            = 24 * time.Hour
	DefaultStuckAfter = 10 * time.Minute
)

// queuedEvent is the Redis payload: the event id plus the raw event JSON.
type queuedEvent struct {
	ID           string          `json:"id"`
	EventID      string          `json:"event_id"`
	Event        json.RawMessage `json:"event"`
	ReceivedAt   time.Time       `json:"received_at"`
	ProcessingAt *time.Time      `json:"processing_at,omitempty"`
}

// RedisQueue keeps accepted events in Redis so they survive a restart. Jobs move
// atomically from the pending list to a processing list and are removed on Ack;
// RecoverStuck puts jobs of crashed workers back.
type RedisQueue struct {
	client        *redis.Client
	maxLen        int64
	queueKey      string
	processingKey string
	jobPrefix     string
}

type RedisQueueOption func(*RedisQueue)

// WithNamespace prefixes every key, e.g. "webhook" -> "webhook_queue".
func WithNamespace(ns string) RedisQueueOption {
	return func(q *RedisQueue) {
		if ns != "" {
			q.queueKey = ns + "_queue"
			q.processingKey = ns + "_processing"
			q.jobPrefix = ns + "_job:"
		}
	}
}

func NewRedisQueue(client *redis.Client, maxLen int, opts ...RedisQueueOption) *RedisQueue {
	if maxLen <= 0 {
		maxLen = DefaultQueueSize
	}
	q := &RedisQueue{client: client, maxLen: int64(maxLen)}
	WithNamespace(DefaultQueueNamespace)(q)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	n, err := q.client.LLen(ctx, q.queueKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if n >= q.maxLen {
		return ErrQueueFull
	}

	raw, err := json.Marshal(job.Event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", job.EventID, err)
	}
	qe := queuedEvent{
		ID:         uuid.NewString(),
		EventID:    job.EventID,
		Event:      raw,
		ReceivedAt: job.ReceivedAt,
	}
	data, err := json.Marshal(qe)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.EventID, err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobPrefix+qe.ID, data, JobTTL)
	pipe.LPush(ctx, q.queueKey, qe.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	log.Debugf("[UserSync] Queued event %s as job %s", job.EventID, qe.ID)
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, wait time.Duration) (*QueuedJob, error) {
	if ctx.Err() != nil {
		return nil, nil
	}
	// A cancelled BRPOPLPUSH may still have moved the id; the sweeper recovers it.
	bctx := context.WithoutCancel(ctx)

	id, err := q.client.BRPopLPush(bctx, q.queueKey, q.processingKey, wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	qe, err := q.load(bctx, id)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			q.client.LRem(bctx, q.processingKey, 1, id)
		}
		return nil, fmt.Errorf("job %s: %w", id, err)
	}

	now := time.Now().UTC()
	qe.ProcessingAt = &now
	q.save(bctx, qe)

	var evt clerk.Event
	if err := json.Unmarshal(qe.Event, &evt); err != nil {
		q.Ack(bctx, &QueuedJob{ID: id})
		return nil, fmt.Errorf("decode event of job %s: %w", id, err)
	}
	return &QueuedJob{ID: id, Job: Job{EventID: qe.EventID, Event: &evt, ReceivedAt: qe.ReceivedAt}}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, qj *QueuedJob) {
	if qj == nil || qj.ID == "" {
		return
	}
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processingKey, 1, qj.ID)
	pipe.Del(ctx, q.jobPrefix+qj.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("[UserSync] Failed to ack job %s: %v", qj.ID, err)
	}
}

func (q *RedisQueue) Len(ctx context.Context) int {
	n, err := q.client.LLen(ctx, q.queueKey).Result()
	if err != nil {
		log.Warnf("[UserSync] LLEN %s failed: %v", q.queueKey, err)
		return 0
	}
	return int(n)
}

func (q *RedisQueue) Durable() bool {
	return true
}

// RecoverStuck moves jobs that have been processing for longer than maxAge back
// to the pending list and drops processing entries whose payload is gone.
func (q *RedisQueue) RecoverStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, q.processingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	recovered := 0
	now := time.Now()
	for _, id := range ids {
		qe, err := q.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			q.client.LRem(ctx, q.processingKey, 1, id)
			continue
		}
		if err != nil {
			return recovered, err
		}
		started := qe.ReceivedAt
		if qe.ProcessingAt != nil {
			started = *qe.ProcessingAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}
		log.Warnf("[UserSync] Recovering stuck job %s (event %s), age=%s", id, qe.EventID, now.Sub(started))
		qe.ProcessingAt = nil
		q.save(ctx, qe)
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.processingKey, 1, id)
		pipe.RPush(ctx, q.queueKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (q *RedisQueue) load(ctx context.Context, id string) (*queuedEvent, error) {
	data, err := q.client.Get(ctx, q.jobPrefix+id).Bytes()
	if err != nil {
		return nil, err
	}
	var qe queuedEvent
	if err := json.Unmarshal(data, &qe); err != nil {
		return nil, err
	}
	return &qe, nil
}

func (q *RedisQueue) save(ctx context.Context, qe *queuedEvent) {
	data, err := json.Marshal(qe)
	if err != nil {
		return
	}
	if err := q.client.SetArgs(ctx, q.jobPrefix+qe.ID, data, redis.SetArgs{KeepTTL: true}).Err(); err != nil {
		log.Errorf("[UserSync] Failed to update job %s: %v", qe.ID, err)
	}
}
