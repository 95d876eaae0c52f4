package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

var ErrConfigMissing = errors.New("config for env missing")

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// backend REST API
	ApiBaseURL        string `toml:"api_base_url"`
	ApiTimeoutSeconds int    `toml:"api_timeout_seconds"`
	// public link to the backend rss feed, shown in the header
	RssFeedURL string `toml:"rss_feed_url"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// sessions
	SessionStore        string `toml:"session_store"`
	SessionTTLHours     int    `toml:"session_ttl_hours"`
	SessionCookieName   string `toml:"session_cookie_name"`
	SessionCookieSecure bool   `toml:"session_cookie_secure"`
	HydrationWaitMs     int    `toml:"hydration_wait_ms"`

	// public posts cache
	PostsCacheTTLSeconds int `toml:"posts_cache_ttl_seconds"`
	PostsCacheSizeMB     int `toml:"posts_cache_size_mb"`

	LoginRateLimitAllowedPerMin int `toml:"login_rate_limit_allowed_per_min"`

	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch strings.ToLower(env) {
	case "dev", "development":
		cfg = t.Development
	case "prod", "production":
		cfg = t.Production
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigMissing, env)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// Load reads the TOML file at path and returns the config section for env.
func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return t.Get(env)
}

// Parse is Load for in-memory TOML content.
func Parse(env, content string) (*Config, error) {
	var t Toml
	if _, err := toml.Decode(content, &t); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return t.Get(env)
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ApiTimeoutSeconds <= 0 {
		c.ApiTimeoutSeconds = 10
	}
	if c.SessionStore == "" {
		c.SessionStore = SessionStoreRedis
	}
	if c.SessionTTLHours <= 0 {
		c.SessionTTLHours = 24 * 7
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = "blogportal_client"
	}
	if c.HydrationWaitMs <= 0 {
		c.HydrationWaitMs = 1500
	}
	if c.PostsCacheTTLSeconds <= 0 {
		c.PostsCacheTTLSeconds = 30
	}
	if c.PostsCacheSizeMB <= 0 {
		c.PostsCacheSizeMB = 16
	}
	if c.LoginRateLimitAllowedPerMin <= 0 {
		c.LoginRateLimitAllowedPerMin = 15
	}
	if c.PrometheusMetricsHost == "" {
		c.PrometheusMetricsHost = "localhost"
	}
	if c.PrometheusMetricsPort == "" {
		c.PrometheusMetricsPort = "2112"
	}
}

func (c *Config) Validate() error {
	if c.ApiBaseURL == "" {
		return errors.New("api_base_url not set")
	}
	switch c.SessionStore {
	case SessionStoreRedis:
		if c.RedisHost == "" || c.RedisPort == "" {
			return errors.New("redis session store requires redis_host and redis_port")
		}
	case SessionStoreMemory:
	default:
		return fmt.Errorf("unknown session store: %s", c.SessionStore)
	}
	return nil
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) HydrationWait() time.Duration {
	return time.Duration(c.HydrationWaitMs) * time.Millisecond
}

func (c *Config) ApiTimeout() time.Duration {
	return time.Duration(c.ApiTimeoutSeconds) * time.Second
}

func (c *Config) PostsCacheTTL() time.Duration {
	return time.Duration(c.PostsCacheTTLSeconds) * time.Second
}
