// Package geo resolves addresses and postcodes to coordinates, with a
// two-tier provider strategy, an injected cache, per-provider rate limiting
// and deterministic positional jitter for postcode-level fallback.
package geo

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

// Cache stores geocoding results keyed by normalized address or postcode.
// A stored nil location is a negative entry: the key was looked up and the
// provider had no data, so it should not be re-queried.
type Cache interface {
	Get(ctx context.Context, key string) (*models.Location, bool)
	Put(ctx context.Context, key string, loc *models.Location)
}

// MemoryCache is the process-scoped cache tier. It supports concurrent reads
// and idempotent concurrent writes; last write wins, which is acceptable
// because values for the same key are equivalent.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*models.Location
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*models.Location)}
}

var _ Cache = (*MemoryCache)(nil)

func (c *MemoryCache) Get(_ context.Context, key string) (*models.Location, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.entries[key]
	return loc, ok
}

func (c *MemoryCache) Put(_ context.Context, key string, loc *models.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = loc
}

// Len returns the number of cached entries, for diagnostics.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// redisEntry is the wire shape for cached locations. Miss marks negative
// entries.
type redisEntry struct {
	Miss bool             `json:"miss,omitempty"`
	Loc  *models.Location `json:"loc,omitempty"`
}

// TieredCache layers the in-memory cache over an optional Redis tier that
// survives across runs. Redis failures degrade to memory-only behaviour.
type TieredCache struct {
	memory *MemoryCache
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewTieredCache creates a cache backed by memory and, when client is
// non-nil, Redis.
func NewTieredCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *TieredCache {
	return &TieredCache{
		memory: NewMemoryCache(),
		client: client,
		ttl:    ttl,
		logger: logger.Named("geo-cache"),
	}
}

var _ Cache = (*TieredCache)(nil)

func (c *TieredCache) Get(ctx context.Context, key string) (*models.Location, bool) {
	if loc, ok := c.memory.Get(ctx, key); ok {
		return loc, ok
	}
	if c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Redis cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false
	}
	if entry.Miss {
		c.memory.Put(ctx, key, nil)
		return nil, true
	}
	c.memory.Put(ctx, key, entry.Loc)
	return entry.Loc, true
}

func (c *TieredCache) Put(ctx context.Context, key string, loc *models.Location) {
	c.memory.Put(ctx, key, loc)
	if c.client == nil {
		return
	}

	entry := redisEntry{Loc: loc, Miss: loc == nil}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKey(key), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Redis cache write failed", zap.Error(err))
	}
}

func redisKey(key string) string {
	return "geocode:" + key
}
