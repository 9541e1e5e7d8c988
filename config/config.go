// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/quotagate/domain/plan"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Keys     KeysConfig     `yaml:"keys"`
	Plans    []PlanConfig   `yaml:"plans"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	OpenAPI  OpenAPIConfig  `yaml:"openapi"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// StoreConfig selects and configures the key store and usage ledger.
type StoreConfig struct {
	Driver string      `yaml:"driver"` // "sqlite", "memory" or "redis"
	DSN    string      `yaml:"dsn"`    // sqlite database path
	Shards int         `yaml:"shards"` // memory shard count
	Redis  RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// KeysConfig configures issued key shape.
type KeysConfig struct {
	Prefix string `yaml:"prefix"`
}

// PlanConfig configures an issuance plan.
type PlanConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Quota int64  `yaml:"quota"`
}

// WebhookConfig maps storefront purchases to a plan.
// An empty ProductID rejects every purchase.
type WebhookConfig struct {
	ProductID string `yaml:"product_id"`
	Plan      string `yaml:"plan"`
}

// UpstreamConfig configures the service behind /api. Empty URL means
// charged requests are echoed instead of forwarded.
type UpstreamConfig struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// OpenAPIConfig configures OpenAPI/Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DomainPlans converts the configured plans to domain values.
func (c *Config) DomainPlans() []plan.Plan {
	out := make([]plan.Plan, len(c.Plans))
	for i, p := range c.Plans {
		out[i] = plan.Plan{ID: p.ID, Name: p.Name, Quota: p.Quota}
	}
	return out
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse builds configuration from YAML bytes. ${VAR} references are
// expanded and QUOTAGATE_* variables override file values.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	QUOTAGATE_SERVER_HOST        - Server host (default: 0.0.0.0)
//	QUOTAGATE_SERVER_PORT        - Server port (default: 8080)
//	QUOTAGATE_STORE_DRIVER       - sqlite, memory or redis (default: sqlite)
//	QUOTAGATE_STORE_DSN          - SQLite path (default: quotagate.db)
//	QUOTAGATE_REDIS_ADDR         - Redis address (default: localhost:6379)
//	QUOTAGATE_REDIS_PASSWORD     - Redis password
//	QUOTAGATE_KEY_PREFIX         - API key prefix (default: qk_)
//	QUOTAGATE_WEBHOOK_PRODUCT_ID - Product id that mints keys
//	QUOTAGATE_WEBHOOK_PLAN       - Plan for purchased keys (default: basic)
//	QUOTAGATE_UPSTREAM_URL       - Forward charged /api requests here
//	QUOTAGATE_LOG_LEVEL          - debug, info, warn, error (default: info)
//	QUOTAGATE_LOG_FORMAT         - json or console (default: json)
//	QUOTAGATE_METRICS_ENABLED    - Enable /metrics endpoint (default: false)
//	QUOTAGATE_OPENAPI_ENABLED    - Enable OpenAPI/Swagger (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads path when it exists, otherwise builds the
// configuration from the environment and defaults.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies QUOTAGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("QUOTAGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("QUOTAGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("QUOTAGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("QUOTAGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Store configuration
	if v := os.Getenv("QUOTAGATE_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("QUOTAGATE_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("QUOTAGATE_STORE_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.Shards = n
		}
	}
	if v := os.Getenv("QUOTAGATE_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("QUOTAGATE_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if v := os.Getenv("QUOTAGATE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.Redis.DB = n
		}
	}
	if v := os.Getenv("QUOTAGATE_REDIS_PREFIX"); v != "" {
		cfg.Store.Redis.Prefix = v
	}

	// Keys and webhook
	if v := os.Getenv("QUOTAGATE_KEY_PREFIX"); v != "" {
		cfg.Keys.Prefix = v
	}
	if v := os.Getenv("QUOTAGATE_WEBHOOK_PRODUCT_ID"); v != "" {
		cfg.Webhook.ProductID = v
	}
	if v := os.Getenv("QUOTAGATE_WEBHOOK_PLAN"); v != "" {
		cfg.Webhook.Plan = v
	}

	// Upstream configuration
	if v := os.Getenv("QUOTAGATE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("QUOTAGATE_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.Timeout = d
		}
	}

	// Logging configuration
	if v := os.Getenv("QUOTAGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QUOTAGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("QUOTAGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("QUOTAGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// OpenAPI configuration
	if v := os.Getenv("QUOTAGATE_OPENAPI_ENABLED"); v != "" {
		cfg.OpenAPI.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverSQLite
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = "quotagate.db"
	}
	if cfg.Store.Shards == 0 {
		cfg.Store.Shards = 32
	}
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = "localhost:6379"
	}
	if cfg.Store.Redis.Prefix == "" {
		cfg.Store.Redis.Prefix = "quotagate:"
	}

	if cfg.Keys.Prefix == "" {
		cfg.Keys.Prefix = "qk_"
	}

	if len(cfg.Plans) == 0 {
		for _, p := range plan.Defaults() {
			cfg.Plans = append(cfg.Plans, PlanConfig{ID: p.ID, Name: p.Name, Quota: p.Quota})
		}
	}
	if cfg.Webhook.Plan == "" {
		cfg.Webhook.Plan = plan.Basic
	}

	if cfg.Upstream.URL != "" && cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case DriverSQLite, DriverMemory, DriverRedis:
	default:
		return fmt.Errorf("store.driver must be one of: sqlite, memory, redis, got %q", cfg.Store.Driver)
	}
	if cfg.Store.Shards < 1 {
		return fmt.Errorf("store.shards must be positive, got %d", cfg.Store.Shards)
	}

	if cfg.Keys.Prefix == "" || strings.ContainsAny(cfg.Keys.Prefix, " \t/") {
		return fmt.Errorf("keys.prefix %q is not a valid key prefix", cfg.Keys.Prefix)
	}

	seen := make(map[string]bool, len(cfg.Plans))
	for i, p := range cfg.Plans {
		if p.ID == "" {
			return fmt.Errorf("plans[%d].id is required", i)
		}
		if p.Quota <= 0 {
			return fmt.Errorf("plans[%d].quota must be positive", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("plans[%d].id %q is duplicated", i, p.ID)
		}
		seen[p.ID] = true
	}
	if !seen[cfg.Webhook.Plan] {
		return fmt.Errorf("webhook.plan %q is not a configured plan", cfg.Webhook.Plan)
	}

	if cfg.Upstream.URL != "" {
		u, err := url.Parse(cfg.Upstream.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("upstream.url must be an absolute URL, got %q", cfg.Upstream.URL)
		}
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	return nil
}
