// Package config loads octofetch configuration from defaults, an optional
// YAML file read through viper, and OCTOFETCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config, data and cache directories.
	AppName = "octofetch"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "OCTOFETCH_"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.token", "")
	v.SetDefault("github.user_agent", "")
	v.SetDefault("github.request_timeout", "10s")
	v.SetDefault("github.per_page", 30)
	v.SetDefault("github.max_pages", 0)
	v.SetDefault("github.max_rate_limit_waits", 3)
	v.SetDefault("github.rate_limit_backoff", "1m")

	v.SetDefault("cache.backend", CacheBackendStore)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.sweep_interval", "1m")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)
}

// Load decodes the settings held by v, then applies environment variables and
// runtime overrides in that order. A nil v means defaults only.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper, runtimeOverrides ...map[string]any) (*Config, error) {
	if v == nil {
		v = viper.New()
		SetDefaults(v)
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	applyTokenFallback(envOverrides)

	merged := v.AllSettings()
	for _, layer := range append([]map[string]any{envOverrides}, runtimeOverrides...) {
		mergeSettings(merged, layer)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// Validate reports settings the fetcher cannot work with.
func (c *Config) Validate() error {
	var errs []error

	parsed, err := url.Parse(c.GitHub.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("github.base_url %q must be an absolute URL", c.GitHub.BaseURL))
	}
	if c.GitHub.RequestTimeout <= 0 {
		errs = append(errs, errors.New("github.request_timeout must be positive"))
	}
	if c.GitHub.PerPage < 1 || c.GitHub.PerPage > 100 {
		errs = append(errs, fmt.Errorf("github.per_page %d must be between 1 and 100", c.GitHub.PerPage))
	}
	if c.GitHub.MaxPages < 0 {
		errs = append(errs, errors.New("github.max_pages must not be negative"))
	}

	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendStore, CacheBackendNone:
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q must be one of memory, store, none", c.Cache.Backend))
	}
	if c.Cache.Backend != CacheBackendNone && c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) normalize() {
	c.GitHub.BaseURL = strings.TrimRight(strings.TrimSpace(c.GitHub.BaseURL), "/")
	c.GitHub.Token = strings.TrimSpace(c.GitHub.Token)
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.Logging.Profile = strings.ToUpper(strings.TrimSpace(c.Logging.Profile))

	if strings.TrimSpace(c.Store.URL) == "" && strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = DefaultStorePath()
	}
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs returns environment variable specifications for config mapping
func getEnvSpecs() []EnvVarSpec {
	prefix := EnvPrefix

	return []EnvVarSpec{
		// Upstream API
		{Name: prefix + "GITHUB_BASE_URL", Path: []string{"github", "base_url"}, Type: EnvString},
		{Name: prefix + "GITHUB_TOKEN", Path: []string{"github", "token"}, Type: EnvString},
		{Name: prefix + "USER_AGENT", Path: []string{"github", "user_agent"}, Type: EnvString},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "REQUEST_TIMEOUT", Path: []string{"github", "request_timeout"}, Type: EnvString},
		{Name: prefix + "PER_PAGE", Path: []string{"github", "per_page"}, Type: EnvInt},
		{Name: prefix + "MAX_PAGES", Path: []string{"github", "max_pages"}, Type: EnvInt},
		{Name: prefix + "MAX_RATE_LIMIT_WAITS", Path: []string{"github", "max_rate_limit_waits"}, Type: EnvInt},
		{Name: prefix + "RATE_LIMIT_BACKOFF", Path: []string{"github", "rate_limit_backoff"}, Type: EnvString},

		// Cache
		{Name: prefix + "CACHE_BACKEND", Path: []string{"cache", "backend"}, Type: EnvString},
		{Name: prefix + "CACHE_TTL", Path: []string{"cache", "ttl"}, Type: EnvString},
		{Name: prefix + "CACHE_SWEEP_INTERVAL", Path: []string{"cache", "sweep_interval"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
	}
}

// applyTokenFallback honours the conventional GITHUB_TOKEN when no
// prefixed token is set.
func applyTokenFallback(envOverrides map[string]any) {
	if strings.TrimSpace(os.Getenv(EnvPrefix+"GITHUB_TOKEN")) != "" {
		return
	}
	token := strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	if token == "" {
		return
	}
	github := ensureMap(envOverrides, "github")
	if existing, ok := github["token"].(string); ok && strings.TrimSpace(existing) != "" {
		return
	}
	github["token"] = token
}

// mergeSettings deep-merges src into dst. Keys are matched case-insensitively
// because viper lower-cases everything it returns.
func mergeSettings(dst, src map[string]any) {
	for key, value := range src {
		key = strings.ToLower(key)
		if nested, ok := value.(map[string]any); ok {
			mergeSettings(ensureMap(dst, key), nested)
			continue
		}
		dst[key] = value
	}
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return map[string]any{}
	}
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
