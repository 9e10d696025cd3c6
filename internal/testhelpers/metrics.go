package testhelpers

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonesrussell/airflow-health/internal/metrics"
)

// NewTestMetrics returns metrics registered on a throwaway registry so
// tests never collide on the default one.
func NewTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}
