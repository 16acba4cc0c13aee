package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/config"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

const defaultRedisKeyPrefix = "bizdir:dedup:"

// MemoryIndex is a process-local KeyIndex; claims are lost when the run ends
type MemoryIndex struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemoryIndex creates an empty in-memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{keys: make(map[string]struct{})}
}

// Claim implements KeyIndex
func (m *MemoryIndex) Claim(ctx context.Context, batch, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := utils.DedupDigest(batch, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.keys[k]; exists {
		return false, nil
	}
	m.keys[k] = struct{}{}
	return true, nil
}

// Release implements KeyIndex
func (m *MemoryIndex) Release(_ context.Context, batch, key string) error {
	m.mu.Lock()
	delete(m.keys, utils.DedupDigest(batch, key))
	m.mu.Unlock()
	return nil
}

// Close implements KeyIndex
func (m *MemoryIndex) Close() error { return nil }

// RedisIndex shares claims between runs and machines through SETNX
type RedisIndex struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *logrus.Entry
}

// NewRedisIndex parses the Redis URL, verifies connectivity and returns an index owning the client
func NewRedisIndex(ctx context.Context, cfg config.RedisConfig, log *logrus.Entry) (*RedisIndex, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: redis.ParseURL: %w", utils.ErrConfigValidation, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %w", utils.ErrDatabase, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	log.Infof("Connected to Redis dedup index at %s (prefix %q)", opts.Addr, prefix)
	return &RedisIndex{client: client, prefix: prefix, ttl: cfg.TTL, log: log}, nil
}

func (r *RedisIndex) key(batch, key string) string {
	return r.prefix + utils.DedupDigest(batch, key)
}

// Claim implements KeyIndex
func (r *RedisIndex) Claim(ctx context.Context, batch, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(batch, key), batch, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis SETNX: %w", utils.ErrDatabase, err)
	}
	return ok, nil
}

// Release implements KeyIndex
func (r *RedisIndex) Release(ctx context.Context, batch, key string) error {
	if err := r.client.Del(ctx, r.key(batch, key)).Err(); err != nil {
		return fmt.Errorf("%w: redis DEL: %w", utils.ErrDatabase, err)
	}
	return nil
}

// Close implements KeyIndex
func (r *RedisIndex) Close() error {
	return r.client.Close()
}
