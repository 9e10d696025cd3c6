package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/slack"
)

// Pinger checks reachability of the Airflow API.
type Pinger interface {
	TestConnection(ctx context.Context) error
}

// ReportRunner triggers one report delivery.
type ReportRunner interface {
	Run(ctx context.Context) error
}

// SystemHandler serves the service health probe and the manual report
// trigger.
type SystemHandler struct {
	airflow  Pinger
	reporter ReportRunner
	logger   logger.Logger
}

func NewSystemHandler(airflow Pinger, reporter ReportRunner, log logger.Logger) *SystemHandler {
	return &SystemHandler{
		airflow:  airflow,
		reporter: reporter,
		logger:   log,
	}
}

// GetHealth serves GET /api/v1/health. The probe itself answers 200 as
// long as the service is up; component state is in the body.
func (h *SystemHandler) GetHealth(c *gin.Context) {
	airflowStatus := "ok"
	status := "ok"
	if err := h.airflow.TestConnection(c.Request.Context()); err != nil {
		airflowStatus = "unreachable"
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"airflow": airflowStatus,
	})
}

// TriggerReport serves POST /api/v1/reports/trigger.
func (h *SystemHandler) TriggerReport(c *gin.Context) {
	if err := h.reporter.Run(c.Request.Context()); err != nil {
		if errors.Is(err, slack.ErrDisabled) {
			c.JSON(http.StatusConflict, gin.H{"error": "Slack webhook not configured"})
			return
		}
		h.logger.Error("Manual report failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send report"})
		return
	}

	h.logger.Info("Report sent via API")
	c.JSON(http.StatusOK, gin.H{"status": "report sent"})
}
