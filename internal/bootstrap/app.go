// Package bootstrap handles application initialization and lifecycle
// management for the airflow-health service.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonesrussell/airflow-health/internal/airflow"
	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/metrics"
	"github.com/jonesrussell/airflow-health/internal/refresh"
	"github.com/jonesrussell/airflow-health/internal/service"
)

const version = "dev"

// Start initializes and runs the airflow-health service.
func Start() error {
	// Phase 1: Load config and create logger
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := CreateLogger(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Phase 2: Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Phase 3: Airflow client. An unreachable Airflow is not fatal; the
	// service starts and serves cached data when it can.
	airflowClient, err := airflow.NewClient(cfg.Airflow, log)
	if err != nil {
		return fmt.Errorf("failed to create airflow client: %w", err)
	}
	if pingErr := airflowClient.TestConnection(context.Background()); pingErr != nil {
		log.Warn("Airflow API unreachable at startup", logger.Error(pingErr))
	}

	// Phase 4: Cache
	responseCache, closeCache, err := SetupCache(cfg, m, log)
	if err != nil {
		return fmt.Errorf("failed to set up cache: %w", err)
	}
	defer closeCache()

	healthService := service.NewHealthService(airflowClient, responseCache, m, log)

	// Phase 5: Scheduled reports
	reporter, err := SetupReporter(cfg, healthService, m, log)
	if err != nil {
		return fmt.Errorf("failed to set up reporter: %w", err)
	}
	reporter.Start()
	defer reporter.Stop()

	// Phase 6: Background refresh
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refreshLoop := refresh.NewLoop(cfg.Refresh, healthService.Refresh, m, log)
	go func() { _ = refreshLoop.Run(ctx) }()

	// Phase 7: HTTP server
	server := SetupHTTPServer(cfg, healthService, airflowClient, reporter, registry, log)

	if runErr := server.RunWithGracefulShutdown(ctx); runErr != nil {
		log.Error("Server error", logger.Error(runErr))
		return fmt.Errorf("server error: %w", runErr)
	}

	log.Info("Server exited")
	return nil
}
