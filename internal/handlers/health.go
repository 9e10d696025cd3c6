// Package handlers contains the gin HTTP handlers for the dashboard API.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/airflow-health/internal/airflow"
	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/models"
	"github.com/jonesrussell/airflow-health/internal/service"
)

const defaultRunsLimit = 25

// HealthService is the slice of the dashboard service the handlers call.
type HealthService interface {
	Dashboard(ctx context.Context, timeRange models.TimeRange) (*models.DashboardResponse, error)
	DomainDetail(ctx context.Context, domainTag string, timeRange models.TimeRange) (*models.DomainDetailResponse, error)
	DagRuns(ctx context.Context, domainTag, dagID string, timeRange models.TimeRange, limit int) ([]models.DagRun, error)
	Refresh(ctx context.Context) error
	RefreshDomain(ctx context.Context, domainTag string) error
	ClearCache(ctx context.Context) error
}

type DashboardHandler struct {
	health HealthService
	logger logger.Logger
}

func NewDashboardHandler(health HealthService, log logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		health: health,
		logger: log,
	}
}

// GetDashboard serves GET /api/v1/domains.
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	timeRange, ok := models.ParseTimeRange(c.Query("time_range"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time_range, expected 24h, 7d or 30d"})
		return
	}

	dashboard, err := h.health.Dashboard(c.Request.Context(), timeRange)
	if err != nil {
		h.respondError(c, err, "Failed to load dashboard")
		return
	}

	c.JSON(http.StatusOK, dashboard)
}

// GetDomain serves GET /api/v1/domains/:domain.
func (h *DashboardHandler) GetDomain(c *gin.Context) {
	domain := c.Param("domain")

	timeRange, ok := models.ParseTimeRange(c.Query("time_range"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time_range, expected 24h, 7d or 30d"})
		return
	}

	detail, err := h.health.DomainDetail(c.Request.Context(), domain, timeRange)
	if err != nil {
		if errors.Is(err, service.ErrUnknownDomain) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
			return
		}
		h.respondError(c, err, "Failed to load domain")
		return
	}

	c.JSON(http.StatusOK, detail)
}

// GetDagRuns serves GET /api/v1/domains/:domain/dags/:dag_id/runs.
func (h *DashboardHandler) GetDagRuns(c *gin.Context) {
	domain := c.Param("domain")
	dagID := c.Param("dag_id")

	timeRange, ok := models.ParseTimeRange(c.Query("time_range"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time_range, expected 24h, 7d or 30d"})
		return
	}

	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	runs, err := h.health.DagRuns(c.Request.Context(), domain, dagID, timeRange, limit)
	if err != nil {
		if errors.Is(err, service.ErrUnknownDag) {
			c.JSON(http.StatusNotFound, gin.H{"error": "DAG not found in domain"})
			return
		}
		h.respondError(c, err, "Failed to load DAG runs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dag_id": dagID,
		"runs":   runs,
		"count":  len(runs),
	})
}

// ClearCache serves POST /api/v1/cache/clear.
func (h *DashboardHandler) ClearCache(c *gin.Context) {
	if err := h.health.ClearCache(c.Request.Context()); err != nil {
		h.logger.Error("Failed to clear cache", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear cache"})
		return
	}

	h.logger.Info("Cache cleared via API")
	c.JSON(http.StatusOK, gin.H{"status": "cache cleared"})
}

// TriggerRefresh serves POST /api/v1/refresh. An optional scope query
// parameter narrows the refresh to a single domain.
func (h *DashboardHandler) TriggerRefresh(c *gin.Context) {
	if scope := c.Query("scope"); scope != "" {
		if err := h.health.RefreshDomain(c.Request.Context(), scope); err != nil {
			if errors.Is(err, service.ErrUnknownDomain) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
				return
			}
			h.respondError(c, err, "Refresh failed")
			return
		}

		h.logger.Info("Domain cache refreshed via API", logger.String("scope", scope))
		c.JSON(http.StatusOK, gin.H{"status": "refreshed", "scope": scope})
		return
	}

	if err := h.health.Refresh(c.Request.Context()); err != nil {
		h.respondError(c, err, "Refresh failed")
		return
	}

	h.logger.Info("Cache refreshed via API")
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

// respondError maps upstream unavailability to 503 and everything else
// to 500.
func (h *DashboardHandler) respondError(c *gin.Context, err error, msg string) {
	if errors.Is(err, airflow.ErrUpstreamUnavailable) {
		h.logger.Warn(msg,
			logger.String("path", c.Request.URL.Path),
			logger.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Airflow API unavailable and no cached data exists"})
		return
	}

	h.logger.Error(msg,
		logger.String("path", c.Request.URL.Path),
		logger.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
