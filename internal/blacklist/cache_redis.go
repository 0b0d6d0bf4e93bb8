package blacklist

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"stablegate/pkg/domain"
	"stablegate/pkg/platform/circuit"
)

const (
	// Redis key prefix for blacklist lookups.
	cacheKeyPrefix = "bl:addr:"

	// cacheTTL bounds how stale a cached verdict can be. Writes invalidate
	// eagerly; the TTL covers the cases they cannot reach (a second
	// instance, a crashed invalidation).
	cacheTTL = 30 * time.Second
)

// Cache is a Redis-backed read cache over blacklist verdicts. The token
// policy engine consults the blacklist on every transfer, so the hot path
// takes a Redis round trip instead of a Postgres one. A circuit breaker
// routes around Redis when it is unhealthy: every call degrades to a miss
// and the store stays authoritative.
type Cache struct {
	client  *redis.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewCache constructs a Redis-backed blacklist cache. A nil client disables
// caching; every method degrades to a miss.
func NewCache(client *redis.Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		client:  client,
		breaker: circuit.New("blacklist-cache"),
		logger:  logger,
	}
}

// Lookup returns the cached verdict for an address. found is false on a
// miss, when caching is disabled, or while the breaker is open; Redis
// failures also read as misses.
func (c *Cache) Lookup(ctx context.Context, addr domain.Address) (active, found bool) {
	if c == nil || c.client == nil || !c.breaker.Allow() {
		return false, false
	}
	val, err := c.client.Get(ctx, cacheKeyPrefix+addr.String()).Result()
	if errors.Is(err, redis.Nil) {
		c.recordSuccess()
		return false, false
	}
	if err != nil {
		c.recordFailure(ctx, err)
		return false, false
	}
	c.recordSuccess()
	return val == "1", true
}

// Save stores a verdict with the cache TTL.
func (c *Cache) Save(ctx context.Context, addr domain.Address, active bool) {
	if c == nil || c.client == nil || !c.breaker.Allow() {
		return
	}
	val := "0"
	if active {
		val = "1"
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+addr.String(), val, cacheTTL).Err(); err != nil {
		c.recordFailure(ctx, err)
		return
	}
	c.recordSuccess()
}

// Invalidate drops the cached verdict after a write. Invalidations bypass
// the open breaker: leaving a stale listing behind is worse than one more
// call against a struggling Redis.
func (c *Cache) Invalidate(ctx context.Context, addr domain.Address) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKeyPrefix+addr.String()).Err(); err != nil {
		c.recordFailure(ctx, err)
		return
	}
	c.recordSuccess()
}

func (c *Cache) recordFailure(ctx context.Context, err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "blacklist cache degraded, bypassing redis",
			"breaker", c.breaker.Name(), "error", err)
	}
}

func (c *Cache) recordSuccess() {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("blacklist cache recovered",
			"breaker", c.breaker.Name())
	}
}
