// Package lock keeps two scheduled sync runs from overlapping.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKey = "deltaneutral-sync:run"
	defaultTTL = time.Hour
)

// ErrHeld is returned by Acquire when another run holds the lock.
var ErrHeld = errors.New("sync run lock is held by another process")

// releaseScript deletes the key only if it still carries our token, so a
// run that outlived its TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-holder lock stored under one Redis key.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock connects to redisURL and checks the connection.
func NewRedisLock(ctx context.Context, redisURL string, ttl time.Duration) (*RedisLock, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisLockWithClient(client, defaultKey, ttl), nil
}

func NewRedisLockWithClient(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = defaultKey
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire takes the lock or returns ErrHeld.
func (l *RedisLock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

// Release drops the lock if this holder still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("redis release failed: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (l *RedisLock) Close() error {
	return l.client.Close()
}
