package bootstrap

import (
	"fmt"

	"github.com/jonesrussell/airflow-health/internal/cache"
	"github.com/jonesrussell/airflow-health/internal/config"
	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/metrics"
	"github.com/jonesrussell/airflow-health/internal/redisclient"
)

// SetupCache builds the two-tier cache on the configured backend and
// returns a cleanup function for the backend connection.
func SetupCache(cfg *config.Config, m *metrics.Metrics, log logger.Logger) (*cache.Cache, func(), error) {
	var store cache.Store
	cleanup := func() {}

	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		store = cache.NewRedisStore(client, cfg.Cache.KeyPrefix, log)
		cleanup = func() {
			if closeErr := client.Close(); closeErr != nil {
				log.Error("Failed to close redis client", logger.Error(closeErr))
			}
		}
		log.Info("Using redis cache backend", logger.String("address", cfg.Redis.Address))

	default:
		store = cache.NewMemoryStore(cfg.Cache.MaxEntries, m, log)
		log.Info("Using in-memory cache backend")
	}

	return cache.New(store, cfg.Cache.PrimaryTTL, cfg.Cache.FallbackTTL, m, log), cleanup, nil
}
