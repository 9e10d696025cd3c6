package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/metrics"
)

// fallbackPrefix namespaces the long-lived tier inside the shared store.
const fallbackPrefix = "fallback:"

// Default TTLs for the two tiers.
const (
	DefaultPrimaryTTL  = 2 * time.Minute
	DefaultFallbackTTL = time.Hour
)

// Cache is the two-tier response cache. Values are stored as JSON under
// the logical key in the primary tier and under "fallback:"+key in the
// fallback tier, with independent TTLs. Writes land in both tiers, so a
// fresh fallback copy exists whenever a fresh primary copy does.
type Cache struct {
	store       Store
	primaryTTL  time.Duration
	fallbackTTL time.Duration
	metrics     *metrics.Metrics
	log         logger.Logger
}

// New creates a two-tier cache over store. Non-positive TTLs use the
// defaults.
func New(store Store, primaryTTL, fallbackTTL time.Duration, m *metrics.Metrics, log logger.Logger) *Cache {
	if primaryTTL <= 0 {
		primaryTTL = DefaultPrimaryTTL
	}
	if fallbackTTL <= 0 {
		fallbackTTL = DefaultFallbackTTL
	}
	return &Cache{
		store:       store,
		primaryTTL:  primaryTTL,
		fallbackTTL: fallbackTTL,
		metrics:     m,
		log:         log,
	}
}

// GetPrimary reads key from the primary tier into out.
func (c *Cache) GetPrimary(ctx context.Context, key string, out any) bool {
	return c.get(ctx, key, TierPrimary, out)
}

// GetFallback reads key from the fallback tier into out.
func (c *Cache) GetFallback(ctx context.Context, key string, out any) bool {
	return c.get(ctx, fallbackPrefix+key, TierFallback, out)
}

func (c *Cache) get(ctx context.Context, storeKey, tier string, out any) bool {
	data, ok := c.store.Get(ctx, storeKey)
	if !ok {
		c.countMiss(tier)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		// A corrupt entry behaves like a miss; the next write replaces it.
		c.log.Warn("Discarding undecodable cache entry",
			logger.String("key", storeKey),
			logger.Error(err),
		)
		c.countMiss(tier)
		return false
	}
	c.countHit(tier)
	return true
}

// PutBoth writes value to the primary and fallback tiers. Each tier is
// written independently; a dropped write in one tier does not undo the
// other.
func (c *Cache) PutBoth(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.log.Error("Failed to encode cache value",
			logger.String("key", key),
			logger.Error(err),
		)
		return
	}
	c.store.Put(ctx, key, data, c.primaryTTL)
	c.store.Put(ctx, fallbackPrefix+key, data, c.fallbackTTL)
}

// ClearAll empties both tiers.
func (c *Cache) ClearAll(ctx context.Context) error {
	if err := c.store.ClearAll(ctx); err != nil {
		return err
	}
	c.log.Info("Cache cleared")
	return nil
}

func (c *Cache) countHit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(tier).Inc()
	}
}

func (c *Cache) countMiss(tier string) {
	if c.metrics != nil {
		c.metrics.CacheMisses.WithLabelValues(tier).Inc()
	}
}
