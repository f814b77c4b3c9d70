package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backend on top of a shared redis.Client. It is the
// backend used whenever a Redis DSN is configured, so that round-robin
// cursors and the router's candidate-group cache stay consistent across
// multiple gateway replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore builds a RedisStore from an already-parsed client and
// verifies connectivity with a bounded ping.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Set(key string, value []byte, ttl time.Duration) error {
	return s.client.Set(context.Background(), key, value, ttl).Err()
}

func (s *RedisStore) Get(key string) ([]byte, error) {
	v, err := s.client.Get(context.Background(), key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (s *RedisStore) Delete(key string) error {
	return s.client.Del(context.Background(), key).Err()
}

func (s *RedisStore) Del(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(context.Background(), keys...).Err()
}

func (s *RedisStore) Exists(key string) (bool, error) {
	n, err := s.client.Exists(context.Background(), key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(context.Background(), key, value, ttl).Result()
}

func (s *RedisStore) HSet(key string, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	return s.client.HSet(context.Background(), key, values).Err()
}

func (s *RedisStore) HGetAll(key string) (map[string]string, error) {
	return s.client.HGetAll(context.Background(), key).Result()
}

func (s *RedisStore) HIncrBy(key, field string, incr int64) (int64, error) {
	return s.client.HIncrBy(context.Background(), key, field, incr).Result()
}

func (s *RedisStore) LPush(key string, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	return s.client.LPush(context.Background(), key, values...).Err()
}

func (s *RedisStore) LRem(key string, count int64, value any) error {
	return s.client.LRem(context.Background(), key, count, value).Err()
}

// Rotate moves the tail of the list to the head and returns the moved
// element, mirroring MemoryStore's round-robin cursor semantics.
func (s *RedisStore) Rotate(key string) (string, error) {
	v, err := s.client.RPopLPush(context.Background(), key, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func (s *RedisStore) LLen(key string) (int64, error) {
	return s.client.LLen(context.Background(), key).Result()
}

func (s *RedisStore) SAdd(key string, members ...any) error {
	if len(members) == 0 {
		return nil
	}
	return s.client.SAdd(context.Background(), key, members...).Err()
}

func (s *RedisStore) SPopN(key string, count int64) ([]string, error) {
	if count <= 0 {
		return []string{}, nil
	}
	v, err := s.client.SPopN(context.Background(), key, count).Result()
	if err != nil {
		if err == redis.Nil {
			return []string{}, nil
		}
		return nil, err
	}
	return v, nil
}

func (s *RedisStore) Publish(channel string, message []byte) error {
	return s.client.Publish(context.Background(), channel, message).Err()
}

type redisSubscription struct {
	pubsub  *redis.PubSub
	msgChan chan *Message
	done    chan struct{}
}

func (r *redisSubscription) Channel() <-chan *Message {
	return r.msgChan
}

func (r *redisSubscription) Close() error {
	close(r.done)
	return r.pubsub.Close()
}

func (s *RedisStore) Subscribe(channel string) (Subscription, error) {
	pubsub := s.client.Subscribe(context.Background(), channel)
	if _, err := pubsub.Receive(context.Background()); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub:  pubsub,
		msgChan: make(chan *Message, 10),
		done:    make(chan struct{}),
	}

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case sub.msgChan <- &Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				default:
					// drop on backpressure, matching MemoryStore's at-most-once delivery
				}
			case <-sub.done:
				return
			}
		}
	}()

	return sub, nil
}

func (s *RedisStore) Clear() error {
	return s.client.FlushDB(context.Background()).Err()
}

// redisPipeliner adapts redis.Pipeliner to the store.Pipeliner contract.
type redisPipeliner struct {
	pipe redis.Pipeliner
}

func (p *redisPipeliner) HSet(key string, values map[string]any) {
	if len(values) == 0 {
		return
	}
	p.pipe.HSet(context.Background(), key, values)
}

func (p *redisPipeliner) LPush(key string, values ...any) {
	if len(values) == 0 {
		return
	}
	p.pipe.LPush(context.Background(), key, values...)
}

func (p *redisPipeliner) LRem(key string, count int64, value any) {
	p.pipe.LRem(context.Background(), key, count, value)
}

func (p *redisPipeliner) Exec() error {
	_, err := p.pipe.Exec(context.Background())
	return err
}

// Pipeline returns a batched Pipeliner backed by a redis.Pipeliner.
func (s *RedisStore) Pipeline() Pipeliner {
	return &redisPipeliner{pipe: s.client.Pipeline()}
}
