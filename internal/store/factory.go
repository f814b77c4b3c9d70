package store

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisDSNProvider is satisfied by config.ConfigManager; kept narrow so the
// store package doesn't need to import config.
type redisDSNProvider interface {
	GetRedisDSN() string
}

// NewStore builds the Store backend configured for this process: a
// MemoryStore when no Redis DSN is configured (single-replica deployments),
// or a RedisStore shared across replicas otherwise.
func NewStore(cfg redisDSNProvider) (Store, error) {
	dsn := cfg.GetRedisDSN()
	if dsn == "" {
		return NewMemoryStore(), nil
	}

	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis DSN: %w", err)
	}

	client := redis.NewClient(opts)
	redisStore, err := NewRedisStore(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return redisStore, nil
}
