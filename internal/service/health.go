package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonesrussell/airflow-health/internal/airflow"
	"github.com/jonesrussell/airflow-health/internal/cache"
	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/metrics"
	"github.com/jonesrussell/airflow-health/internal/models"
)

var (
	// ErrUnknownDomain is returned when no DAG belongs to the requested domain.
	ErrUnknownDomain = errors.New("unknown domain")
	// ErrUnknownDag is returned when the requested DAG is not in the domain.
	ErrUnknownDag = errors.New("unknown dag")
)

// AirflowAPI is the slice of the Airflow client the health service needs.
type AirflowAPI interface {
	ListDags(ctx context.Context) ([]models.Dag, error)
	ListRuns(ctx context.Context, dagID string, timeRange models.TimeRange, limit int) ([]models.DagRun, error)
	ListRunsForDags(ctx context.Context, dagIDs []string, timeRange models.TimeRange) map[string][]models.DagRun
	BaseURL() string
}

// HealthService serves the dashboard views. Reads go primary cache
// first, then a single-flighted upstream fetch that repopulates both
// tiers, then the fallback tier when the fetch fails. Only an
// airflow.ErrUpstreamUnavailable failure is eligible for fallback.
type HealthService struct {
	airflow AirflowAPI
	cache   *cache.Cache
	metrics *metrics.Metrics
	log     logger.Logger
	group   singleflight.Group
	now     func() time.Time
}

// NewHealthService creates the dashboard service.
func NewHealthService(api AirflowAPI, c *cache.Cache, m *metrics.Metrics, log logger.Logger) *HealthService {
	return &HealthService{
		airflow: api,
		cache:   c,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// supportedRanges are the windows a forced refresh re-primes.
var supportedRanges = []models.TimeRange{models.Range24h, models.Range7d, models.Range30d}

func dashboardKey(timeRange models.TimeRange) string {
	return "dashboard:" + string(timeRange)
}

func domainKey(domainTag string, timeRange models.TimeRange) string {
	return "domain:" + domainTag + ":" + string(timeRange)
}

// Dashboard returns the domain overview for one time range.
func (s *HealthService) Dashboard(ctx context.Context, timeRange models.TimeRange) (*models.DashboardResponse, error) {
	key := dashboardKey(timeRange)

	var cached models.DashboardResponse
	if s.cache.GetPrimary(ctx, key, &cached) {
		return &cached, nil
	}

	result, err, shared := s.group.Do(key, func() (any, error) {
		// Detached context: sharers must not inherit the first caller's
		// cancellation, which is not an upstream failure and would skip
		// the fallback tier.
		return s.fetchDashboard(context.WithoutCancel(ctx), timeRange)
	})
	if shared {
		s.metrics.SingleflightHit.Inc()
	}
	if err != nil {
		var stale models.DashboardResponse
		if s.serveFallback(ctx, key, err, &stale) {
			stale.Stale = true
			return &stale, nil
		}
		return nil, err
	}

	return result.(*models.DashboardResponse), nil
}

// DomainDetail returns the per-DAG breakdown for one domain.
func (s *HealthService) DomainDetail(ctx context.Context, domainTag string, timeRange models.TimeRange) (*models.DomainDetailResponse, error) {
	key := domainKey(domainTag, timeRange)

	var cached models.DomainDetailResponse
	if s.cache.GetPrimary(ctx, key, &cached) {
		return &cached, nil
	}

	result, err, shared := s.group.Do(key, func() (any, error) {
		return s.fetchDomainDetail(context.WithoutCancel(ctx), domainTag, timeRange)
	})
	if shared {
		s.metrics.SingleflightHit.Inc()
	}
	if err != nil {
		if errors.Is(err, ErrUnknownDomain) {
			return nil, err
		}
		var stale models.DomainDetailResponse
		if s.serveFallback(ctx, key, err, &stale) {
			stale.Stale = true
			return &stale, nil
		}
		return nil, err
	}

	return result.(*models.DomainDetailResponse), nil
}

// DagRuns returns recent runs for one DAG. Run listings are always
// fetched live so the drill-down reflects what Airflow reports right now.
func (s *HealthService) DagRuns(ctx context.Context, domainTag, dagID string, timeRange models.TimeRange, limit int) ([]models.DagRun, error) {
	dags, err := s.airflow.ListDags(ctx)
	if err != nil {
		return nil, err
	}

	found := false
	for _, dag := range dags {
		if dag.ID != dagID {
			continue
		}
		if DomainForDag(dag) != domainTag {
			return nil, fmt.Errorf("%w: %q is not in domain %q", ErrUnknownDag, dagID, domainTag)
		}
		found = true
		break
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDag, dagID)
	}

	return s.airflow.ListRuns(ctx, dagID, timeRange, limit)
}

// Refresh re-fetches and re-caches the dashboard for every supported
// time range, bypassing the primary cache. Each fetch also rewrites the
// per-domain entries, so drill-down views never lag behind the overview.
func (s *HealthService) Refresh(ctx context.Context) error {
	var errs []error
	for _, timeRange := range supportedRanges {
		if _, err := s.fetchDashboard(ctx, timeRange); err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", timeRange, err))
		}
	}
	return errors.Join(errs...)
}

// RefreshDomain re-fetches one domain's drill-down for every supported
// time range, bypassing the primary cache.
func (s *HealthService) RefreshDomain(ctx context.Context, domainTag string) error {
	var errs []error
	for _, timeRange := range supportedRanges {
		if _, err := s.fetchDomainDetail(ctx, domainTag, timeRange); err != nil {
			if errors.Is(err, ErrUnknownDomain) {
				return err
			}
			errs = append(errs, fmt.Errorf("refresh %s %s: %w", domainTag, timeRange, err))
		}
	}
	return errors.Join(errs...)
}

// ClearCache empties both cache tiers.
func (s *HealthService) ClearCache(ctx context.Context) error {
	return s.cache.ClearAll(ctx)
}

// fetchDashboard pulls DAGs and runs from Airflow, builds the dashboard,
// and writes it to both cache tiers.
func (s *HealthService) fetchDashboard(ctx context.Context, timeRange models.TimeRange) (*models.DashboardResponse, error) {
	start := time.Now()

	dags, err := s.airflow.ListDags(ctx)
	if err != nil {
		s.metrics.UpstreamErrors.Inc()
		return nil, err
	}

	runsByDag := s.airflow.ListRunsForDags(ctx, dagIDs(dags), timeRange)
	now := s.now()
	response := BuildDashboard(timeRange, dags, runsByDag, now)

	s.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	s.cache.PutBoth(ctx, dashboardKey(timeRange), response)

	// One fetch already holds every DAG and run, so rewrite the
	// per-domain entries too. A forced refresh must invalidate the
	// drill-down views, not just the overview.
	baseURL := s.airflow.BaseURL()
	for tag, domainDags := range GroupByDomain(dags) {
		detail := BuildDomainDetail(tag, timeRange, domainDags, runsByDag, baseURL, now)
		s.cache.PutBoth(ctx, domainKey(tag, timeRange), detail)
	}

	s.log.Debug("Dashboard refreshed",
		logger.String("time_range", string(timeRange)),
		logger.Int("domains", response.TotalDomains),
		logger.Int("dags", response.TotalDags),
	)
	return response, nil
}

func (s *HealthService) fetchDomainDetail(ctx context.Context, domainTag string, timeRange models.TimeRange) (*models.DomainDetailResponse, error) {
	start := time.Now()

	dags, err := s.airflow.ListDags(ctx)
	if err != nil {
		s.metrics.UpstreamErrors.Inc()
		return nil, err
	}

	domainDags := GroupByDomain(dags)[domainTag]
	if len(domainDags) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domainTag)
	}

	runsByDag := s.airflow.ListRunsForDags(ctx, dagIDs(domainDags), timeRange)
	response := BuildDomainDetail(domainTag, timeRange, domainDags, runsByDag, s.airflow.BaseURL(), s.now())

	s.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	s.cache.PutBoth(ctx, domainKey(domainTag, timeRange), response)

	return response, nil
}

// serveFallback decodes the fallback tier into out when the fetch error
// was an upstream availability failure. Any other error class is a bug
// in this service, not a reason to serve stale data.
func (s *HealthService) serveFallback(ctx context.Context, key string, fetchErr error, out any) bool {
	if !errors.Is(fetchErr, airflow.ErrUpstreamUnavailable) {
		return false
	}
	if !s.cache.GetFallback(ctx, key, out) {
		return false
	}

	s.metrics.FallbackServes.Inc()
	s.log.Warn("Serving stale data from fallback cache",
		logger.String("key", key),
		logger.Error(fetchErr),
	)
	return true
}

func dagIDs(dags []models.Dag) []string {
	ids := make([]string, 0, len(dags))
	for _, dag := range dags {
		ids = append(ids, dag.ID)
	}
	return ids
}
