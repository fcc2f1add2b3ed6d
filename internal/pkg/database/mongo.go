package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

// SetupMongo connects to MONGODB_URI with the same bounded retry as SetupDatabase.
func SetupMongo(ctx context.Context) (*mongo.Client, error) {
	journal := true
	opts := options.Client().
		ApplyURI(env.GetEnv("MONGODB_URI", "mongodb://localhost:27017")).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetSocketTimeout(45 * time.Second).
		SetWriteConcern(&writeconcern.WriteConcern{W: "majority", Journal: &journal, WTimeout: 5 * time.Second})

	maxRetries := env.GetEnvInt("DB_CONNECT_RETRIES", defaultMaxRetries)
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		client, err := mongo.Connect(ctx, opts)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = client.Ping(pingCtx, readpref.Primary())
			cancel()
			if err == nil {
				log.Print("MongoDB connected")
				return client, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err

		log.Printf("Failed to connect to MongoDB (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return nil, lastErr
}
