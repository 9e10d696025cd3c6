// Package api wires the gin router for the dashboard service.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/airflow-health/internal/handlers"
	"github.com/jonesrussell/airflow-health/internal/logger"
)

const (
	corsMaxAgeHours = 12
)

// Config holds router settings.
type Config struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	Dashboard *handlers.DashboardHandler
	System    *handlers.SystemHandler
	Registry  *prometheus.Registry
	Logger    logger.Logger
}

func NewRouter(cfg Config, deps RouterDeps) *gin.Engine {
	router := gin.New()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	// CORS middleware - must be first
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Accept-Encoding",
			"Authorization", "accept", "origin", "Cache-Control", "X-Requested-With",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           corsMaxAgeHours * time.Hour,
	}))

	// Middleware
	router.Use(requestID())
	router.Use(ginLogger(deps.Logger))
	router.Use(gin.Recovery())

	// Liveness probe
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	// API v1
	v1 := router.Group("/api/v1")
	v1.GET("/health", deps.System.GetHealth)

	domains := v1.Group("/domains")
	domains.GET("", deps.Dashboard.GetDashboard)
	domains.GET("/:domain", deps.Dashboard.GetDomain)
	domains.GET("/:domain/dags/:dag_id/runs", deps.Dashboard.GetDagRuns)

	v1.POST("/cache/clear", deps.Dashboard.ClearCache)
	v1.POST("/refresh", deps.Dashboard.TriggerRefresh)
	v1.POST("/reports/trigger", deps.System.TriggerReport)

	return router
}

// requestID tags each request with a unique ID, honoring one supplied by
// the caller.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}

		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)

		c.Next()
	}
}

func ginLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		log.Info("HTTP request",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status_code", statusCode),
			logger.String("client_ip", c.ClientIP()),
			logger.String("request_id", c.GetString("request_id")),
			logger.Duration("duration", duration),
		)
	}
}
