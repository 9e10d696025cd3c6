package config

import (
	"fmt"
	"time"

	"github.com/jonesrussell/airflow-health/internal/airflow"
	"github.com/jonesrussell/airflow-health/internal/api"
	"github.com/jonesrussell/airflow-health/internal/llm"
	"github.com/jonesrussell/airflow-health/internal/logger"
	"github.com/jonesrussell/airflow-health/internal/redisclient"
	"github.com/jonesrussell/airflow-health/internal/refresh"
	"github.com/jonesrussell/airflow-health/internal/report"
	"github.com/jonesrussell/airflow-health/internal/slack"
)

// DefaultConfigPath is used when CONFIG_PATH is not set.
const DefaultConfigPath = "config.yml"

// Supported cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" yaml:"host"`
	Port            int           `env:"SERVER_PORT" yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	Backend     string        `env:"CACHE_BACKEND"      yaml:"backend"`
	PrimaryTTL  time.Duration `env:"CACHE_PRIMARY_TTL"  yaml:"primary_ttl"`
	FallbackTTL time.Duration `env:"CACHE_FALLBACK_TTL" yaml:"fallback_ttl"`
	MaxEntries  int           `yaml:"max_entries"`
	KeyPrefix   string        `yaml:"key_prefix"`
}

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig       `yaml:"server"`
	Log     logger.Config      `yaml:"log"`
	API     api.Config         `yaml:"api"`
	Airflow airflow.Config     `yaml:"airflow"`
	Cache   CacheConfig        `yaml:"cache"`
	Redis   redisclient.Config `yaml:"redis"`
	Refresh refresh.Config     `yaml:"refresh"`
	LLM     llm.Config         `yaml:"llm"`
	Slack   slack.Config       `yaml:"slack"`
	Report  report.Config      `yaml:"report"`
}

// Load reads the config file, applies defaults and env overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg, err := load[Config](path)
	if err != nil {
		return nil, err
	}

	cfg.setDefaults()
	// Env wins over defaults too.
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheBackendMemory
	}
	if c.Airflow.Timeout <= 0 {
		c.Airflow.Timeout = 30 * time.Second
	}
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	if c.Airflow.BaseURL == "" {
		return fmt.Errorf("airflow.base_url is required")
	}
	if c.Airflow.APIToken == "" && (c.Airflow.Username == "" || c.Airflow.Password == "") {
		return fmt.Errorf("airflow.api_token or airflow.username/password is required")
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q, expected %q or %q", c.Cache.Backend, CacheBackendMemory, CacheBackendRedis)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	return nil
}
