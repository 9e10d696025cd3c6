package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/airflow-health/internal/cache"
	"github.com/jonesrussell/airflow-health/internal/testhelpers"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newCache(t *testing.T, primaryTTL, fallbackTTL time.Duration) (*cache.Cache, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore(0, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger())
	return cache.New(store, primaryTTL, fallbackTTL, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger()), store
}

func TestCache_PutBothPopulatesBothTiers(t *testing.T) {
	c, _ := newCache(t, time.Minute, time.Hour)
	ctx := context.Background()

	c.PutBoth(ctx, "dashboard:24h", payload{Name: "finance", Count: 3})

	var fromPrimary, fromFallback payload
	require.True(t, c.GetPrimary(ctx, "dashboard:24h", &fromPrimary))
	require.True(t, c.GetFallback(ctx, "dashboard:24h", &fromFallback))
	assert.Equal(t, fromPrimary, fromFallback)
	assert.Equal(t, "finance", fromPrimary.Name)
}

func TestCache_FallbackOutlivesPrimary(t *testing.T) {
	c, store := newCache(t, time.Minute, time.Hour)
	ctx := context.Background()

	now := time.Now()
	store.SetNowFunc(func() time.Time { return now })

	c.PutBoth(ctx, "key", payload{Name: "sales"})

	now = now.Add(5 * time.Minute)

	var out payload
	assert.False(t, c.GetPrimary(ctx, "key", &out), "primary should have expired")
	require.True(t, c.GetFallback(ctx, "key", &out), "fallback should still be live")
	assert.Equal(t, "sales", out.Name)
}

func TestCache_TiersAreKeyspaceSeparated(t *testing.T) {
	c, store := newCache(t, time.Minute, time.Hour)
	ctx := context.Background()

	c.PutBoth(ctx, "key", payload{Name: "a"})

	// One logical key occupies two store entries.
	assert.Equal(t, 2, store.Len())
}

func TestCache_UndecodableEntryIsAMiss(t *testing.T) {
	c, store := newCache(t, time.Minute, time.Hour)
	ctx := context.Background()

	store.Put(ctx, "key", []byte("{not json"), time.Minute)

	var out payload
	assert.False(t, c.GetPrimary(ctx, "key", &out))
}

func TestCache_ClearAllEmptiesBothTiers(t *testing.T) {
	c, _ := newCache(t, time.Minute, time.Hour)
	ctx := context.Background()

	c.PutBoth(ctx, "key", payload{Name: "a"})
	require.NoError(t, c.ClearAll(ctx))

	var out payload
	assert.False(t, c.GetPrimary(ctx, "key", &out))
	assert.False(t, c.GetFallback(ctx, "key", &out))
}
