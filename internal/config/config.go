// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Download DownloadConfig
	S3       S3Config
	Eval     EvalConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, downloads can be large)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 10m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"10m"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. When empty node state and
	// run history are kept in memory.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

// StorageConfig holds the local directories the service reads and writes.
type StorageConfig struct {
	// UploadDir receives browser uploads (default: data/uploads)
	UploadDir string `env:"STORAGE_UPLOAD_DIR" default:"data/uploads"`

	// WriteDir anchors relative write directories (default: data/out)
	WriteDir string `env:"STORAGE_WRITE_DIR" default:"data/out"`

	// DownloadDir caches fetched remote sources (default: data/downloads)
	DownloadDir string `env:"STORAGE_DOWNLOAD_DIR" default:"data/downloads"`

	// Mounts lists browsable server directories as name=path pairs,
	// e.g. "shared=/srv/shared,exports=/srv/exports"
	Mounts []string `env:"STORAGE_MOUNTS"`

	// MaxUploadSize is the maximum accepted upload in bytes (default: 100MB)
	MaxUploadSize int64 `env:"STORAGE_MAX_UPLOAD_SIZE" envAlt:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`
}

// MountMap parses Mounts into a name to directory map.
func (c StorageConfig) MountMap() (map[string]string, error) {
	out := make(map[string]string, len(c.Mounts))
	for _, m := range c.Mounts {
		name, dir, ok := strings.Cut(m, "=")
		name, dir = strings.TrimSpace(name), strings.TrimSpace(dir)
		if !ok || name == "" || dir == "" {
			return nil, fmt.Errorf("mount %q must be name=path", m)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("mount %q is listed twice", name)
		}
		out[name] = dir
	}
	return out, nil
}

// DownloadConfig holds settings for fetching http(s) and s3 sources.
type DownloadConfig struct {
	// Timeout bounds a single download (default: 5m)
	Timeout time.Duration `env:"DOWNLOAD_TIMEOUT" default:"5m"`

	// MaxBytes is the largest remote file accepted (default: 500MB)
	MaxBytes int64 `env:"DOWNLOAD_MAX_BYTES" default:"524288000"`

	// CacheSize is the number of downloaded files kept on disk (default: 32)
	CacheSize int `env:"DOWNLOAD_CACHE_SIZE" default:"32"`

	// CacheTTL is how long a download is reused before refetching (default: 15m)
	CacheTTL time.Duration `env:"DOWNLOAD_CACHE_TTL" default:"15m"`
}

// S3Config holds the object store used for s3:// sources. Leave Endpoint
// empty to disable them.
type S3Config struct {
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" default:"us-east-1"`
	AccessKey string `env:"S3_ACCESS_KEY" envAlt:"AWS_ACCESS_KEY_ID"`
	SecretKey string `env:"S3_SECRET_KEY" envAlt:"AWS_SECRET_ACCESS_KEY"`
	UseSSL    bool   `env:"S3_USE_SSL" default:"true"`
}

// EvalConfig holds node evaluation settings.
type EvalConfig struct {
	// MaxConcurrent is the maximum number of node evaluations at once (default: 4)
	MaxConcurrent int `env:"EVAL_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for an evaluation slot (default: 30s)
	MaxWaitTime time.Duration `env:"EVAL_MAX_WAIT_TIME" default:"30s"`

	// ParallelLoads is the number of files a multi-file read loads at once (default: 4)
	ParallelLoads int `env:"EVAL_PARALLEL_LOADS" default:"4"`

	// Timeout is the maximum duration of a single evaluation (default: 10m)
	Timeout time.Duration `env:"EVAL_TIMEOUT" default:"10m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}
