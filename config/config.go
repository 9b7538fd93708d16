// Package config loads the gateway's runtime settings from the
// environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config is populated from the environment via envdecode tags.
type Config struct {
	// PublicEndpoint is the fully qualified URL clients use to reach the
	// MCP endpoint. ENV: PUBLIC_ENDPOINT
	PublicEndpoint string `env:"PUBLIC_ENDPOINT,default=http://localhost:8080/mcp"`

	// ListenAddr is the local bind address. ENV: LISTEN_ADDR
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`

	// ServerName identifies the server to clients. ENV: SERVER_NAME
	ServerName string `env:"SERVER_NAME,default=outlook-mcp"`

	// AllowedTenants is a semicolon-separated Entra tenant ID allow
	// list. Empty admits any tenant. ENV: ALLOWED_TENANTS
	AllowedTenants []string `env:"ALLOWED_TENANTS"`

	// RateLimitRequests and RateLimitWindow bound per-user admission.
	// ENV: RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS,default=30"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW,default=1m"`

	// RegisterLimitRequests and RegisterLimitWindow bound the
	// unauthenticated registration stub per client IP.
	// ENV: REGISTER_LIMIT_REQUESTS, REGISTER_LIMIT_WINDOW
	RegisterLimitRequests int           `env:"REGISTER_LIMIT_REQUESTS,default=5"`
	RegisterLimitWindow   time.Duration `env:"REGISTER_LIMIT_WINDOW,default=1m"`

	// GraphBaseURL overrides the Graph endpoint (sovereign clouds).
	// ENV: GRAPH_BASE_URL
	GraphBaseURL string `env:"GRAPH_BASE_URL"`

	// EntraTenant scopes the advertised authorization server.
	// ENV: ENTRA_TENANT
	EntraTenant string `env:"ENTRA_TENANT,default=organizations"`

	// DiscoverAuthServer fetches Entra's metadata at startup instead of
	// synthesizing it. ENV: DISCOVER_AUTH_SERVER
	DiscoverAuthServer bool `env:"DISCOVER_AUTH_SERVER,default=false"`

	// RedisAddr, when set, switches rate limiting to the shared Redis
	// backend for horizontally scaled deployments. ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR"`

	// LogLevel is debug, info, warn or error. ENV: LOG_LEVEL
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// FromEnv decodes and validates the configuration.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if cfg.RateLimitRequests <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("rate limit requests and window must be positive")
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SlogLevel maps LogLevel onto slog's levels.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
}
