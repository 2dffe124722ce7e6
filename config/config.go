// Package config reads the service configuration from LEDGER_* environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config holds runtime configuration for the ledger service.
type Config struct {
	Addr           string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"20s"`

	Backend  string `envconfig:"BACKEND" default:"json"`
	DataDir  string `envconfig:"DATA_DIR" default:"./data/books"`
	DBPath   string `envconfig:"DB_PATH" default:"./data/ledger.db"`
	Timezone string `envconfig:"TIMEZONE" default:"Asia/Kolkata"`

	// ReportsFile optionally adds or overrides report definitions.
	ReportsFile string `envconfig:"REPORTS_FILE"`

	// RedisAddr enables the report cache when set.
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"10m"`
	WatchInterval time.Duration `envconfig:"WATCH_INTERVAL" default:"5s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	RateLimit   int      `envconfig:"RATE_LIMIT" default:"120"` // requests per minute per IP, 0 disables
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`
	Production  bool     `envconfig:"PRODUCTION" default:"false"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("ledger", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend != BackendJSON && c.Backend != BackendSQLite {
		return fmt.Errorf("config: unknown backend %q (want %s or %s)", c.Backend, BackendJSON, BackendSQLite)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	return nil
}

// Location returns the configured time zone used to read record dates.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
