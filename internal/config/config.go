package config

import (
	"time"
)

// Config represents the complete application configuration. Values are
// layered: built-in defaults, then the config file, then environment
// variables and runtime overrides.
type Config struct {
	GitHub  GitHubConfig  `mapstructure:"github" yaml:"github"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Health  HealthConfig  `mapstructure:"health" yaml:"health"`
}

// GitHubConfig describes the upstream API and how hard to push it.
type GitHubConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Token is the bearer credential. GITHUB_TOKEN is honoured as a fallback.
	Token             string        `mapstructure:"token" yaml:"token"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	PerPage           int           `mapstructure:"per_page" yaml:"per_page"`
	MaxPages          int           `mapstructure:"max_pages" yaml:"max_pages"`
	MaxRateLimitWaits int           `mapstructure:"max_rate_limit_waits" yaml:"max_rate_limit_waits"`
	RateLimitBackoff  time.Duration `mapstructure:"rate_limit_backoff" yaml:"rate_limit_backoff"`
}

// CacheConfig selects where fetched responses are kept and for how long.
type CacheConfig struct {
	// Backend is one of memory, store or none.
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	URL       string `mapstructure:"url" yaml:"url"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendStore  = "store"
	CacheBackendNone   = "none"
)

const redacted = "[redacted]"

// Redacted returns a copy safe to print: credentials are masked.
func (c Config) Redacted() Config {
	if c.GitHub.Token != "" {
		c.GitHub.Token = redacted
	}
	if c.Store.AuthToken != "" {
		c.Store.AuthToken = redacted
	}
	return c
}
