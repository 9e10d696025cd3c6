package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/airflow-health/internal/airflow"
	"github.com/jonesrussell/airflow-health/internal/cache"
	"github.com/jonesrussell/airflow-health/internal/models"
	"github.com/jonesrussell/airflow-health/internal/service"
	"github.com/jonesrussell/airflow-health/internal/testhelpers"
)

// fakeAirflow is a scriptable AirflowAPI. Set failing to make every call
// return ErrUpstreamUnavailable, delay to slow ListDags down.
type fakeAirflow struct {
	dags      []models.Dag
	runsByDag map[string][]models.DagRun
	failing   atomic.Bool
	listCalls atomic.Int32
	delay     time.Duration
}

func (f *fakeAirflow) ListDags(ctx context.Context) ([]models.Dag, error) {
	f.listCalls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failing.Load() {
		return nil, airflow.ErrUpstreamUnavailable
	}
	return f.dags, nil
}

func (f *fakeAirflow) ListRuns(_ context.Context, dagID string, _ models.TimeRange, limit int) ([]models.DagRun, error) {
	if f.failing.Load() {
		return nil, airflow.ErrUpstreamUnavailable
	}
	runs := f.runsByDag[dagID]
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (f *fakeAirflow) ListRunsForDags(_ context.Context, dagIDs []string, _ models.TimeRange) map[string][]models.DagRun {
	results := make(map[string][]models.DagRun, len(dagIDs))
	for _, id := range dagIDs {
		results[id] = f.runsByDag[id]
	}
	return results
}

func (f *fakeAirflow) BaseURL() string { return "http://airflow.local" }

func newHealthService(t *testing.T, api *fakeAirflow) *service.HealthService {
	t.Helper()
	store := cache.NewMemoryStore(0, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger())
	c := cache.New(store, time.Minute, time.Hour, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger())
	return service.NewHealthService(api, c, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger())
}

func healthyFake() *fakeAirflow {
	now := time.Now()
	return &fakeAirflow{
		dags: []models.Dag{
			dag("billing", "domain:finance"),
			dag("ledger", "domain:finance"),
			dag("ingest", "domain:etl"),
		},
		runsByDag: map[string][]models.DagRun{
			"billing": {run("billing", models.StateSuccess, now)},
			"ledger":  {run("ledger", models.StateFailed, now)},
			"ingest":  {run("ingest", models.StateSuccess, now)},
		},
	}
}

func TestDashboard_FetchesAndCaches(t *testing.T) {
	api := healthyFake()
	svc := newHealthService(t, api)
	ctx := context.Background()

	first, err := svc.Dashboard(ctx, models.Range24h)
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalDomains)
	assert.Equal(t, 3, first.TotalDags)
	assert.False(t, first.Stale)

	// Second read is a primary cache hit, no new upstream call.
	calls := api.listCalls.Load()
	second, err := svc.Dashboard(ctx, models.Range24h)
	require.NoError(t, err)
	assert.Equal(t, calls, api.listCalls.Load())
	assert.Equal(t, first.TotalDags, second.TotalDags)
}

func TestDashboard_PrimaryHitSurvivesOutage(t *testing.T) {
	api := healthyFake()
	svc := newHealthService(t, api)
	ctx := context.Background()

	warm, err := svc.Dashboard(ctx, models.Range24h)
	require.NoError(t, err)

	api.failing.Store(true)

	// Primary still live: served fresh from cache despite the outage.
	got, err := svc.Dashboard(ctx, models.Range24h)
	require.NoError(t, err)
	assert.False(t, got.Stale)
	assert.Equal(t, warm.TotalDags, got.TotalDags)
}

func TestDashboard_FallbackAfterPrimaryExpires(t *testing.T) {
	api := healthyFake()

	store := cache.NewMemoryStore(0, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger())
	now := time.Now()
	store.SetNowFunc(func() time.Time { return now })
	c := cache.New(store, time.Minute, time.Hour, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger())
	svc := service.NewHealthService(api, c, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger())
	ctx := context.Background()

	warm, err := svc.Dashboard(ctx, models.Range24h)
	require.NoError(t, err)

	// Outage begins and the primary entry ages out; only fallback remains.
	api.failing.Store(true)
	now = now.Add(5 * time.Minute)

	got, err := svc.Dashboard(ctx, models.Range24h)
	require.NoError(t, err)
	assert.True(t, got.Stale, "fallback data must be flagged stale")
	assert.Equal(t, warm.TotalDags, got.TotalDags)
}

func TestDashboard_CollapsesConcurrentFetches(t *testing.T) {
	api := healthyFake()
	api.delay = 100 * time.Millisecond
	svc := newHealthService(t, api)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Dashboard(context.Background(), models.Range24h)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), api.listCalls.Load(), "concurrent misses must share one fetch")
}

func TestDashboard_FetchSurvivesCallerCancellation(t *testing.T) {
	api := healthyFake()
	svc := newHealthService(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The shared fetch runs detached from any one caller, so a cancelled
	// request still completes it and primes the cache for everyone else.
	got, err := svc.Dashboard(ctx, models.Range24h)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalDags)
}

func TestDashboard_ErrorWhenNoFallbackExists(t *testing.T) {
	api := healthyFake()
	api.failing.Store(true)
	svc := newHealthService(t, api)

	_, err := svc.Dashboard(context.Background(), models.Range24h)
	require.ErrorIs(t, err, airflow.ErrUpstreamUnavailable)
}

func TestDomainDetail_UnknownDomain(t *testing.T) {
	svc := newHealthService(t, healthyFake())

	_, err := svc.DomainDetail(context.Background(), "nonexistent", models.Range24h)
	require.ErrorIs(t, err, service.ErrUnknownDomain)
}

func TestDomainDetail_BuildsPerDagBreakdown(t *testing.T) {
	svc := newHealthService(t, healthyFake())

	detail, err := svc.DomainDetail(context.Background(), "finance", models.Range24h)
	require.NoError(t, err)

	assert.Equal(t, "finance", detail.DomainTag)
	require.Len(t, detail.Dags, 2)
	// ledger failed, so it sorts first.
	assert.Equal(t, "ledger", detail.Dags[0].DagID)
	assert.True(t, detail.Summary.HasFailures)
}

func TestDomainDetail_ServesFallbackWhenUpstreamFails(t *testing.T) {
	api := healthyFake()

	store := cache.NewMemoryStore(0, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger())
	now := time.Now()
	store.SetNowFunc(func() time.Time { return now })
	c := cache.New(store, time.Minute, time.Hour, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger())
	svc := service.NewHealthService(api, c, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger())
	ctx := context.Background()

	_, err := svc.DomainDetail(ctx, "etl", models.Range24h)
	require.NoError(t, err)

	api.failing.Store(true)
	now = now.Add(5 * time.Minute)

	detail, err := svc.DomainDetail(ctx, "etl", models.Range24h)
	require.NoError(t, err)
	assert.True(t, detail.Stale)
	assert.Equal(t, "etl", detail.DomainTag)
}

func TestDagRuns_ChecksDomainMembership(t *testing.T) {
	svc := newHealthService(t, healthyFake())
	ctx := context.Background()

	runs, err := svc.DagRuns(ctx, "finance", "billing", models.Range24h, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = svc.DagRuns(ctx, "etl", "billing", models.Range24h, 10)
	require.ErrorIs(t, err, service.ErrUnknownDag)

	_, err = svc.DagRuns(ctx, "finance", "no-such-dag", models.Range24h, 10)
	require.ErrorIs(t, err, service.ErrUnknownDag)
}

func TestRefresh_WarmsAllTimeRanges(t *testing.T) {
	api := healthyFake()
	svc := newHealthService(t, api)
	ctx := context.Background()

	require.NoError(t, svc.Refresh(ctx))

	// Every range is now a primary hit.
	calls := api.listCalls.Load()
	for _, timeRange := range []models.TimeRange{models.Range24h, models.Range7d, models.Range30d} {
		_, err := svc.Dashboard(ctx, timeRange)
		require.NoError(t, err)
	}
	assert.Equal(t, calls, api.listCalls.Load())
}

func TestRefresh_RePrimesDomainDetails(t *testing.T) {
	api := healthyFake()
	svc := newHealthService(t, api)
	ctx := context.Background()

	warm, err := svc.DomainDetail(ctx, "finance", models.Range24h)
	require.NoError(t, err)
	require.Len(t, warm.Dags, 2)

	// A new DAG lands in the domain upstream.
	api.dags = append(api.dags, dag("invoice", "domain:finance"))
	api.runsByDag["invoice"] = []models.DagRun{run("invoice", models.StateSuccess, time.Now())}

	require.NoError(t, svc.Refresh(ctx))

	// The drill-down must show the new DAG straight from the refreshed
	// cache, without waiting out the old primary entry's TTL.
	calls := api.listCalls.Load()
	detail, err := svc.DomainDetail(ctx, "finance", models.Range24h)
	require.NoError(t, err)
	assert.Len(t, detail.Dags, 3)
	assert.Equal(t, calls, api.listCalls.Load())
}

func TestRefreshDomain_WarmsOneDomain(t *testing.T) {
	api := healthyFake()
	svc := newHealthService(t, api)
	ctx := context.Background()

	require.NoError(t, svc.RefreshDomain(ctx, "finance"))

	// Every range for the domain is now a primary hit.
	calls := api.listCalls.Load()
	for _, timeRange := range []models.TimeRange{models.Range24h, models.Range7d, models.Range30d} {
		detail, err := svc.DomainDetail(ctx, "finance", timeRange)
		require.NoError(t, err)
		assert.Equal(t, "finance", detail.DomainTag)
	}
	assert.Equal(t, calls, api.listCalls.Load())
}

func TestRefreshDomain_UnknownDomain(t *testing.T) {
	svc := newHealthService(t, healthyFake())

	err := svc.RefreshDomain(context.Background(), "nonexistent")
	require.ErrorIs(t, err, service.ErrUnknownDomain)
}

func TestRefresh_ReportsUpstreamFailure(t *testing.T) {
	api := healthyFake()
	api.failing.Store(true)
	svc := newHealthService(t, api)

	err := svc.Refresh(context.Background())
	require.ErrorIs(t, err, airflow.ErrUpstreamUnavailable)
}

func TestClearCache_ForcesRefetch(t *testing.T) {
	api := healthyFake()
	svc := newHealthService(t, api)
	ctx := context.Background()

	_, err := svc.Dashboard(ctx, models.Range24h)
	require.NoError(t, err)

	require.NoError(t, svc.ClearCache(ctx))

	calls := api.listCalls.Load()
	_, err = svc.Dashboard(ctx, models.Range24h)
	require.NoError(t, err)
	assert.Greater(t, api.listCalls.Load(), calls, "clear must drop both tiers")
}
