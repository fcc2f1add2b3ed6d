package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const KeyPrefix = "webhook_event:"

// RedisTracker shares tracking state between instances. Every key carries the
// retention TTL, so EvictExpired has nothing to do. Redis errors are logged and
// the tracker fails open.
type RedisTracker struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisTracker(client *redis.Client, retention time.Duration) *RedisTracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisTracker{client: client, retention: retention}
}

func (t *RedisTracker) key(eventID string) string {
	return KeyPrefix + eventID
}

func encodeEntry(status Status, reason string) string {
	data, _ := json.Marshal(Entry{Status: status, Timestamp: time.Now().UTC(), Error: reason})
	return string(data)
}

func (t *RedisTracker) IsKnown(ctx context.Context, eventID string) bool {
	n, err := t.client.Exists(ctx, t.key(eventID)).Result()
	if err != nil {
		log.Warnf("[Idempotency] Redis EXISTS failed for %s: %v", eventID, err)
		return false
	}
	return n > 0
}

func (t *RedisTracker) MarkProcessing(ctx context.Context, eventID string) bool {
	key := t.key(eventID)
	value := encodeEntry(StatusProcessing, "")

	ok, err := t.client.SetNX(ctx, key, value, t.retention).Result()
	if err != nil {
		log.Warnf("[Idempotency] Redis SETNX failed for %s, processing anyway: %v", eventID, err)
		return true
	}
	if ok {
		return true
	}

	// a failed attempt may be claimed again
	entry, found := t.Get(ctx, eventID)
	if !found || entry.Status != StatusFailed {
		return false
	}
	swapped, err := t.client.SetArgs(ctx, key, value, redis.SetArgs{Mode: "XX", KeepTTL: true, Get: true}).Result()
	if errors.Is(err, redis.Nil) {
		// expired in between
		ok, err = t.client.SetNX(ctx, key, value, t.retention).Result()
		return ok || err != nil
	}
	if err != nil {
		log.Warnf("[Idempotency] Redis SET XX failed for %s, processing anyway: %v", eventID, err)
		return true
	}
	var old Entry
	if jerr := json.Unmarshal([]byte(swapped), &old); jerr != nil {
		return true
	}
	return old.Status == StatusFailed
}

func (t *RedisTracker) MarkCompleted(ctx context.Context, eventID string) {
	t.setStatus(ctx, eventID, StatusCompleted, "")
}

func (t *RedisTracker) MarkFailed(ctx context.Context, eventID string, reason string) {
	t.setStatus(ctx, eventID, StatusFailed, reason)
}

func (t *RedisTracker) setStatus(ctx context.Context, eventID string, status Status, reason string) {
	key := t.key(eventID)
	value := encodeEntry(status, reason)
	// keep the original TTL when the key exists, start a fresh one otherwise
	res, err := t.client.SetArgs(ctx, key, value, redis.SetArgs{Mode: "XX", KeepTTL: true}).Result()
	if errors.Is(err, redis.Nil) || (err == nil && res != "OK") {
		err = t.client.Set(ctx, key, value, t.retention).Err()
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Warnf("[Idempotency] Redis SET failed for %s (%s): %v", eventID, status, err)
	}
}

func (t *RedisTracker) Get(ctx context.Context, eventID string) (Entry, bool) {
	data, err := t.client.Get(ctx, t.key(eventID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("[Idempotency] Redis GET failed for %s: %v", eventID, err)
		}
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

func (t *RedisTracker) EvictExpired(now time.Time) int {
	return 0
}
