package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

var (
	client *redis.Client
	mu     sync.Mutex
)

// SetupCache initializes the connection to the Redis/Dragonfly cache server.
// A failed ping is logged; callers decide whether the cache is optional.
func SetupCache() *redis.Client {
	mu.Lock()
	defer mu.Unlock()

	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to cache: %v", err)
	} else {
		log.Printf("Successfully connected to cache: %s", pong)
	}
	return client
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	mu.Lock()
	c := client
	mu.Unlock()
	if c == nil {
		return SetupCache()
	}
	return c
}

// Close releases the client if one was created.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
