// Package testhelpers provides shared test fixtures.
package testhelpers

import (
	"github.com/jonesrussell/airflow-health/internal/logger"
)

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() logger.Logger {
	return logger.NewNop()
}
