// Package cache persists built retrieval artifacts so repeat queries
// against an unchanged document skip re-chunking and re-embedding.
//
// Two layers back the cache: a small in-process LRU of decoded
// artifacts, and an optional Redis tier holding encoded bytes under a
// TTL. Redis failures of any kind are treated as cache misses, never
// as pipeline errors.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/smartctx/sdch/internal/vector"
)

const (
	// KeyPrefix namespaces artifact keys in Redis.
	KeyPrefix = "sdch:index"

	// DefaultTTL is how long encoded artifacts live in Redis.
	DefaultTTL = time.Hour

	// DefaultWarmSize is the number of decoded artifacts held in
	// process memory.
	DefaultWarmSize = 32

	// opTimeout bounds individual Redis operations so a slow cache
	// never stalls a query.
	opTimeout = time.Second
)

// ArtifactCache stores encoded vector artifacts keyed by document ID.
// Returned artifacts are shared across callers and must be treated as
// read-only.
type ArtifactCache struct {
	rdb    *redis.Client
	warm   *lru.Cache[string, *vector.Artifact]
	ttl    time.Duration
	logger *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Option configures an ArtifactCache.
type Option func(*ArtifactCache)

// WithTTL overrides the Redis expiry for stored artifacts.
func WithTTL(ttl time.Duration) Option {
	return func(c *ArtifactCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ArtifactCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an ArtifactCache. A nil client keeps the cache purely
// in-process.
func New(rdb *redis.Client, opts ...Option) (*ArtifactCache, error) {
	warm, err := lru.New[string, *vector.Artifact](DefaultWarmSize)
	if err != nil {
		return nil, fmt.Errorf("creating warm cache: %w", err)
	}
	c := &ArtifactCache{
		rdb:    rdb,
		warm:   warm,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Get returns the cached artifact for docID, checking the warm layer
// before Redis.
func (c *ArtifactCache) Get(ctx context.Context, docID string) (*vector.Artifact, bool) {
	if art, ok := c.warm.Get(docID); ok {
		c.hits.Add(1)
		return art, true
	}
	if c.rdb == nil {
		c.misses.Add(1)
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.rdb.Get(opCtx, key(docID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("artifact_cache_error", "op", "get", "doc_id", docID, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}

	art, err := vector.Decode(data)
	if err != nil {
		// Corrupt payload. Delete it so the next build overwrites.
		c.logger.Warn("artifact_cache_corrupt", "doc_id", docID, "error", err)
		c.rdb.Del(opCtx, key(docID))
		c.misses.Add(1)
		return nil, false
	}

	c.warm.Add(docID, art)
	c.hits.Add(1)
	return art, true
}

// Put stores the artifact in both layers. Failures are logged and
// swallowed so caching never breaks ingestion or queries.
func (c *ArtifactCache) Put(ctx context.Context, docID string, art *vector.Artifact) {
	if art == nil {
		return
	}
	c.warm.Add(docID, art)
	if c.rdb == nil {
		return
	}

	data, err := art.Encode()
	if err != nil {
		c.logger.Warn("artifact_encode_failed", "doc_id", docID, "error", err)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.rdb.Set(opCtx, key(docID), data, c.ttl).Err(); err != nil {
		c.logger.Debug("artifact_cache_error", "op", "set", "doc_id", docID, "error", err)
	}
}

// Invalidate drops the artifact for docID from both layers.
func (c *ArtifactCache) Invalidate(ctx context.Context, docID string) {
	c.warm.Remove(docID)
	if c.rdb == nil {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.rdb.Del(opCtx, key(docID)).Err(); err != nil {
		c.logger.Debug("artifact_cache_error", "op", "del", "doc_id", docID, "error", err)
	}
}

// UsingRedis reports whether a Redis tier is attached.
func (c *ArtifactCache) UsingRedis() bool {
	return c.rdb != nil
}

// HitRate returns the fraction of lookups served from cache.
func (c *ArtifactCache) HitRate() float64 {
	hits := c.hits.Load()
	total := hits + c.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func key(docID string) string {
	return KeyPrefix + ":" + docID
}
