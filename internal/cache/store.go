// Package cache implements the two-tier response cache backing the
// dashboard: a short-lived primary tier for fresh responses and a
// long-lived fallback tier served when the Airflow API is unreachable.
package cache

import (
	"context"
	"time"
)

// Tier labels for metrics and logs.
const (
	TierPrimary  = "primary"
	TierFallback = "fallback"
)

// Store is a TTL key/value store backing one cache instance. Values are
// opaque byte slices; expiry is enforced at read time, so a Get after the
// TTL elapses is a miss even if no sweep has run.
//
// Stores are fail-soft: a backend failure surfaces as a miss on Get and a
// dropped write on Put, never as an error to the caller.
type Store interface {
	// Get returns the value for key, or false on miss, expiry, or
	// backend failure.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Put stores value under key with the given TTL, overwriting any
	// existing entry atomically.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration)

	// ClearAll removes every entry owned by this store.
	ClearAll(ctx context.Context) error
}
