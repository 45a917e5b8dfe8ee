// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
)

// ErrMissingRedisURL means the limiter has nowhere to keep its state. It is a
// startup failure: the process must not serve requests unprotected.
var ErrMissingRedisURL = errors.New("REDIS_URL is required")

const (
	EnvRedisURL       = "REDIS_URL"
	EnvServerAddr     = "SERVER_ADDR"
	EnvBackendTimeout = "RATE_LIMIT_BACKEND_TIMEOUT"
	EnvFailOpen       = "RATE_LIMIT_FAIL_OPEN"
	EnvFailClosed     = "RATE_LIMIT_FAIL_CLOSED"
	EnvKeyHeaders     = "RATE_LIMIT_KEY_HEADERS"
	EnvLogLevel       = "LOG_LEVEL"
)

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	RateLimiter RateLimiterConfig
	LogLevel    string
}

type ServerConfig struct {
	Addr string
}

type RedisConfig struct {
	URL string
}

type RateLimiterConfig struct {
	BackendTimeout time.Duration
	// preset names whose fail policy is forced at startup
	FailOpen   []string
	FailClosed []string
	// when set, clients are keyed by these request headers instead of their IP
	KeyHeaders []string
}

// Load reads a .env file if present, then the environment.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...)
	return FromEnv()
}

// FromEnv reads the configuration from the environment. When REDIS_URL is
// unset the returned Config is still filled in and the error is
// ErrMissingRedisURL, so commands that never touch Redis can use it.
func FromEnv() (Config, error) {
	timeout, err := time.ParseDuration(getEnv(EnvBackendTimeout, "500ms"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", EnvBackendTimeout, err)
	}
	if timeout <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive, got %s", EnvBackendTimeout, timeout)
	}

	cfg := Config{
		Server: ServerConfig{Addr: getEnv(EnvServerAddr, ":8080")},
		Redis:  RedisConfig{URL: getEnv(EnvRedisURL, "")},
		RateLimiter: RateLimiterConfig{
			BackendTimeout: timeout,
			FailOpen:       getList(EnvFailOpen),
			FailClosed:     getList(EnvFailClosed),
			KeyHeaders:     getList(EnvKeyHeaders),
		},
		LogLevel: getEnv(EnvLogLevel, "info"),
	}

	if cfg.Redis.URL == "" {
		return cfg, ErrMissingRedisURL
	}
	if _, err := redis.ParseURL(cfg.Redis.URL); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", EnvRedisURL, err)
	}
	return cfg, nil
}

// RedisOptions parses the connection string into client options.
func (c RedisConfig) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvRedisURL, err)
	}
	return opts, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}

	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
