// Package store provides a pluggable key-value backend for caches and
// cursors that must be shared across goroutines (and, with the Redis
// backend, across processes): the key manager's round-robin key lists and
// the router's candidate-group cache and group cursors.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("store: key not found")

// Message is a pub/sub message delivered to a Subscription.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription represents an active pub/sub subscription.
type Subscription interface {
	Channel() <-chan *Message
	Close() error
}

// Store is the key-value contract shared by the in-memory and Redis
// backends. Values are opaque byte slices; callers own serialization.
type Store interface {
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Del(keys ...string) error
	Exists(key string) (bool, error)
	SetNX(key string, value []byte, ttl time.Duration) (bool, error)

	HSet(key string, values map[string]any) error
	HGetAll(key string) (map[string]string, error)
	HIncrBy(key, field string, incr int64) (int64, error)

	LPush(key string, values ...any) error
	LRem(key string, count int64, value any) error
	Rotate(key string) (string, error)
	LLen(key string) (int64, error)

	SAdd(key string, members ...any) error
	SPopN(key string, count int64) ([]string, error)

	Publish(channel string, message []byte) error
	Subscribe(channel string) (Subscription, error)

	Clear() error
	Close() error
}

// Pipeliner batches a sequence of write operations to be flushed together.
// Implementations that don't support pipelining are accessed directly
// through Store; callers type-assert for RedisPipeliner to opt in.
type Pipeliner interface {
	HSet(key string, values map[string]any)
	LPush(key string, values ...any)
	LRem(key string, count int64, value any)
	Exec() error
}

// RedisPipeliner is implemented by Store backends that can batch commands
// into a single round trip. MemoryStore does not implement it; callers
// fall back to issuing Store operations one at a time.
type RedisPipeliner interface {
	Pipeline() Pipeliner
}
