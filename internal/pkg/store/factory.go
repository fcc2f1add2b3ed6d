package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ManuelReschke/CreditFox/internal/pkg/database"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
)

const (
	BackendMySQL  = "mysql"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// OpenFromEnv opens the backend named by STORE_BACKEND (default mysql).
func OpenFromEnv(ctx context.Context) (Store, error) {
	opts := Options{OpTimeout: env.GetEnvDuration("STORE_OP_TIMEOUT", DefaultOpTimeout)}
	backend := strings.ToLower(strings.TrimSpace(env.GetEnv("STORE_BACKEND", BackendMySQL)))

	switch backend {
	case BackendMySQL, "":
		db, err := database.SetupDatabase()
		if err != nil {
			return nil, fmt.Errorf("open mysql store: %w", err)
		}
		return NewGormStore(db, opts), nil
	case BackendMongo, "mongodb":
		client, err := database.SetupMongo(ctx)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		s := NewMongoStore(client, env.GetEnv("MONGODB_DATABASE", "bg-removal"), MongoOptions{
			Options:         opts,
			UseTransactions: env.GetEnvBool("MONGODB_TRANSACTIONS", true),
		})
		if !s.Atomic() {
			log.Printf("[Store] MongoDB transactions disabled: payment top-ups will be refused")
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return s, nil
	case BackendMemory, "mem", "inmem":
		log.Print("Store: using in-memory backend, data is lost on restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
	}
}
