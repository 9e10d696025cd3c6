package bootstrap

import (
	"flag"
	"fmt"

	"github.com/jonesrussell/airflow-health/internal/config"
	"github.com/jonesrussell/airflow-health/internal/logger"
)

// LoadConfig loads configuration. Uses the -config flag with CONFIG_PATH
// as the default.
func LoadConfig() (*config.Config, error) {
	configPath := flag.String("config", config.GetConfigPath(config.DefaultConfigPath), "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// CreateLogger creates a logger instance from configuration.
func CreateLogger(cfg *config.Config, version string) (logger.Logger, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(
		logger.String("service", "airflow-health"),
		logger.String("version", version),
	), nil
}
