// Package refresh runs the background cache warmer that keeps the
// dashboard populated without waiting for user traffic.
package refresh

import (
	"context"
	"time"

	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/metrics"
)

// Default cadence and post-error backoff for the refresh loop.
const (
	DefaultInterval     = 5 * time.Minute
	DefaultErrorBackoff = time.Minute
)

// Refresher is the function a tick invokes; in production it is
// HealthService.Refresh.
type Refresher func(ctx context.Context) error

// Config tunes the refresh loop.
type Config struct {
	Interval     time.Duration `env:"REFRESH_INTERVAL"      yaml:"interval"`
	ErrorBackoff time.Duration `env:"REFRESH_ERROR_BACKOFF" yaml:"error_backoff"`
}

// Loop periodically re-warms the cache. After a failed tick it waits the
// shorter error backoff before trying again, so an Airflow outage is
// noticed quickly once it ends.
type Loop struct {
	refresh  Refresher
	interval time.Duration
	backoff  time.Duration
	metrics  *metrics.Metrics
	log      logger.Logger
}

// NewLoop creates a refresh loop. Non-positive durations use the defaults.
func NewLoop(cfg Config, refresh Refresher, m *metrics.Metrics, log logger.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	return &Loop{
		refresh:  refresh,
		interval: cfg.Interval,
		backoff:  cfg.ErrorBackoff,
		metrics:  m,
		log:      log,
	}
}

// Run executes one immediate refresh and then ticks until ctx is
// cancelled. It always returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("Background refresh started",
		logger.Duration("interval", l.interval),
		logger.Duration("error_backoff", l.backoff),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info("Background refresh stopped")
			return ctx.Err()
		case <-timer.C:
		}

		timer.Reset(l.tick(ctx))
	}
}

// tick runs one refresh and returns the wait before the next one.
func (l *Loop) tick(ctx context.Context) time.Duration {
	if err := l.refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return l.backoff
		}
		l.metrics.RefreshTicks.WithLabelValues("error").Inc()
		l.log.Warn("Refresh tick failed, backing off", logger.Error(err))
		return l.backoff
	}

	l.metrics.RefreshTicks.WithLabelValues("ok").Inc()
	return l.interval
}
