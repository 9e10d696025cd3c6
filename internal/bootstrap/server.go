package bootstrap

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonesrussell/airflow-health/internal/airflow"
	"github.com/jonesrussell/airflow-health/internal/api"
	"github.com/jonesrussell/airflow-health/internal/config"
	"github.com/jonesrussell/airflow-health/internal/handlers"
	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/report"
	"github.com/jonesrussell/airflow-health/internal/service"
)

// SetupHTTPServer creates and configures the HTTP server.
func SetupHTTPServer(
	cfg *config.Config,
	healthService *service.HealthService,
	airflowClient *airflow.Client,
	reporter *report.Reporter,
	registry *prometheus.Registry,
	log logger.Logger,
) *api.Server {
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.NewRouter(cfg.API, api.RouterDeps{
		Dashboard: handlers.NewDashboardHandler(healthService, log),
		System:    handlers.NewSystemHandler(airflowClient, reporter, log),
		Registry:  registry,
		Logger:    log,
	})

	return api.NewServer(cfg.Server.Addr(), router, cfg.Server.ShutdownTimeout, log)
}
