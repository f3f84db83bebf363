// Package redis stores memoized aggregates in Redis so they survive restarts
// and are shared between replicas.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giygas/ppu-savings/logging"
	"github.com/redis/go-redis/v9"
)

// Config describes the Redis connection
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key, e.g. "ppu:"
	Prefix      string
	DialTimeout time.Duration
}

// MemoBackend implements interfaces.MemoBackend on Redis
type MemoBackend struct {
	rdb    redis.Cmdable
	client *redis.Client
	prefix string
}

// Connect opens a client and checks it answers
func Connect(ctx context.Context, cfg Config) (*MemoBackend, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logging.Info("Connected to Redis", "addr", cfg.Addr, "db", cfg.DB)

	backend := NewMemoBackend(client, cfg.Prefix)
	backend.client = client
	return backend, nil
}

// NewMemoBackend wraps an existing client
func NewMemoBackend(rdb redis.Cmdable, prefix string) *MemoBackend {
	return &MemoBackend{rdb: rdb, prefix: prefix}
}

func (b *MemoBackend) key(key string) string {
	return b.prefix + key
}

// Get returns the stored entry. A missing key is a miss, not an error.
func (b *MemoBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.rdb.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

// Set stores an entry; a zero ttl keeps it until evicted
func (b *MemoBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.rdb.Set(ctx, b.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection
func (b *MemoBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close releases the client if the backend opened it
func (b *MemoBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
