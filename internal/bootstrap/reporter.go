package bootstrap

import (
	"github.com/jonesrussell/airflow-health/internal/config"
	"github.com/jonesrussell/airflow-health/internal/llm"
	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/metrics"
	"github.com/jonesrussell/airflow-health/internal/report"
	"github.com/jonesrussell/airflow-health/internal/service"
	"github.com/jonesrussell/airflow-health/internal/slack"
)

// SetupReporter wires the Slack notifier and LLM analyzer into the cron
// reporter. Both integrations are optional and disable themselves when
// unconfigured.
func SetupReporter(cfg *config.Config, healthService *service.HealthService, m *metrics.Metrics, log logger.Logger) (*report.Reporter, error) {
	analyzer := llm.NewAnalyzer(cfg.LLM, log)
	notifier := slack.NewNotifier(cfg.Slack, log)

	if analyzer.Enabled() {
		log.Info("LLM failure analysis enabled")
	}

	return report.NewReporter(cfg.Report, healthService, analyzer, notifier, m, log)
}
