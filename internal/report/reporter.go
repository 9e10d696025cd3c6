// Package report builds the twice-daily health reports and posts them to
// Slack on a cron schedule, with an optional LLM failure analysis.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/airflow-health/internal/llm"
	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/metrics"
	"github.com/jonesrussell/airflow-health/internal/models"
	"github.com/jonesrussell/airflow-health/internal/slack"
)

// Default report times, morning standup and end of day.
const (
	DefaultMorningSchedule = "0 10 * * *"
	DefaultEveningSchedule = "0 19 * * *"

	reportTimeout = 2 * time.Minute
)

// Config tunes the report schedule.
type Config struct {
	MorningSchedule string `env:"REPORT_MORNING_SCHEDULE" yaml:"morning_schedule"`
	EveningSchedule string `env:"REPORT_EVENING_SCHEDULE" yaml:"evening_schedule"`
	Timezone        string `env:"REPORT_TIMEZONE"         yaml:"timezone"`
}

// Dashboarder is the slice of the health service the reporter reads.
type Dashboarder interface {
	Dashboard(ctx context.Context, timeRange models.TimeRange) (*models.DashboardResponse, error)
	DomainDetail(ctx context.Context, domainTag string, timeRange models.TimeRange) (*models.DomainDetailResponse, error)
}

// Analyzer produces the optional LLM failure analysis.
type Analyzer interface {
	Enabled() bool
	AnalyzeFailures(ctx context.Context, failures []llm.DagFailure) (*models.FailureAnalysis, error)
}

// Notifier delivers the rendered report.
type Notifier interface {
	Enabled() bool
	Send(ctx context.Context, msg slack.Message) error
}

// Reporter owns the cron schedule and report assembly.
type Reporter struct {
	health   Dashboarder
	analyzer Analyzer
	notifier Notifier
	cron     *cron.Cron
	metrics  *metrics.Metrics
	log      logger.Logger
}

// NewReporter creates a reporter. Empty schedules use the defaults; an
// invalid timezone falls back to UTC.
func NewReporter(cfg Config, health Dashboarder, analyzer Analyzer, notifier Notifier, m *metrics.Metrics, log logger.Logger) (*Reporter, error) {
	location := time.UTC
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Warn("Invalid report timezone, using UTC", logger.String("timezone", cfg.Timezone))
		} else {
			location = loc
		}
	}

	r := &Reporter{
		health:   health,
		analyzer: analyzer,
		notifier: notifier,
		cron:     cron.New(cron.WithLocation(location)),
		metrics:  m,
		log:      log,
	}

	for _, schedule := range []string{
		orDefault(cfg.MorningSchedule, DefaultMorningSchedule),
		orDefault(cfg.EveningSchedule, DefaultEveningSchedule),
	} {
		if _, err := r.cron.AddFunc(schedule, r.runScheduled); err != nil {
			return nil, fmt.Errorf("invalid report schedule %q: %w", schedule, err)
		}
	}

	return r, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// Start begins the cron schedule. It is a no-op without a notifier.
func (r *Reporter) Start() {
	if !r.notifier.Enabled() {
		r.log.Info("Scheduled reports disabled, no Slack webhook configured")
		return
	}
	r.cron.Start()
	r.log.Info("Scheduled reports started")
}

// Stop halts the cron schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reporter) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	if err := r.Run(ctx); err != nil {
		r.metrics.ReportsSent.WithLabelValues("error").Inc()
		r.log.Error("Scheduled report failed", logger.Error(err))
		return
	}
	r.metrics.ReportsSent.WithLabelValues("ok").Inc()
}

// Run builds and sends one report for the last 24 hours. It is also the
// handler behind the manual trigger endpoint.
func (r *Reporter) Run(ctx context.Context) error {
	if !r.notifier.Enabled() {
		return slack.ErrDisabled
	}

	dashboard, err := r.health.Dashboard(ctx, models.Range24h)
	if err != nil {
		return fmt.Errorf("load dashboard: %w", err)
	}

	failures := r.collectFailures(ctx, dashboard)

	var analysis *models.FailureAnalysis
	if r.analyzer.Enabled() && len(failures) > 0 {
		analysis, err = r.analyzer.AnalyzeFailures(ctx, failures)
		if err != nil && !errors.Is(err, llm.ErrDisabled) {
			// Reports still go out without the analysis section.
			r.log.Warn("Failure analysis unavailable for report", logger.Error(err))
		}
	}

	msg := buildMessage(dashboard, failures, analysis)
	if err := r.notifier.Send(ctx, msg); err != nil {
		return fmt.Errorf("send report: %w", err)
	}

	r.log.Info("Health report sent",
		logger.Int("domains", dashboard.TotalDomains),
		logger.Int("failing_dags", len(failures)),
		logger.Bool("stale", dashboard.Stale),
	)
	return nil
}

// collectFailures walks the failing domains and pulls their per-DAG
// breakdowns. A domain whose detail cannot be loaded is skipped; the
// report covers what it can.
func (r *Reporter) collectFailures(ctx context.Context, dashboard *models.DashboardResponse) []llm.DagFailure {
	var failures []llm.DagFailure
	for _, domain := range dashboard.Domains {
		if !domain.HasFailures {
			continue
		}

		detail, err := r.health.DomainDetail(ctx, domain.DomainTag, models.Range24h)
		if err != nil {
			r.log.Warn("Skipping domain in report",
				logger.String("domain", domain.DomainTag),
				logger.Error(err),
			)
			continue
		}

		for _, dag := range detail.Dags {
			if dag.FailedCount == 0 {
				continue
			}
			failures = append(failures, llm.DagFailure{
				Domain:       domain.DomainTag,
				DagID:        dag.DagID,
				FailedCount:  dag.FailedCount,
				TotalRuns:    dag.TotalRuns,
				LastRunState: dag.LastRunState,
			})
		}
	}
	return failures
}
