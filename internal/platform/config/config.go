// Package config loads process configuration from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// EventTimezone is the IANA zone an event's "HH:MM" time of day is read in.
	EventTimezone string `env:"EVENT_TIMEZONE" default:"UTC"`

	CommentMaxLength      int `env:"COMMENT_MAX_LENGTH" default:"1000"`
	ForumMessageMaxLength int `env:"FORUM_MESSAGE_MAX_LENGTH" default:"500"`

	MaxSubscribersPerRoom int `env:"MAX_SUBSCRIBERS_PER_ROOM" default:"5000"`

	// Websocket admission; zero disables the respective limit.
	MaxConnections      int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRate      float64 `env:"CONNECTION_RATE_PER_IP" default:"10"`
	ConnectionBurst     int     `env:"CONNECTION_RATE_BURST" default:"20"`

	RateLimit float64 `env:"RATE_LIMIT" default:"5"`
	RateBurst int     `env:"RATE_BURST" default:"10"`

	// AllowedOrigins is a comma-separated list of extra websocket origins; the request
	// host is always allowed.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	EventCacheTTL   time.Duration `env:"EVENT_CACHE_TTL" default:"1h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	location *time.Location
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.AppEnv == "production" && cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required in production")
	}

	loc, err := time.LoadLocation(cfg.EventTimezone)
	if err != nil {
		return fmt.Errorf("EVENT_TIMEZONE is not a valid time zone: %w", err)
	}
	cfg.location = loc

	positive := map[string]int{
		"COMMENT_MAX_LENGTH":       cfg.CommentMaxLength,
		"FORUM_MESSAGE_MAX_LENGTH": cfg.ForumMessageMaxLength,
		"RATE_BURST":               cfg.RateBurst,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, value)
		}
	}

	nonNegative := map[string]int{
		"MAX_SUBSCRIBERS_PER_ROOM":  cfg.MaxSubscribersPerRoom,
		"MAX_WEBSOCKET_CONNECTIONS": cfg.MaxConnections,
		"MAX_CONNECTIONS_PER_IP":    cfg.MaxConnectionsPerIP,
		"CONNECTION_RATE_BURST":     cfg.ConnectionBurst,
	}
	for name, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, value)
		}
	}
	if cfg.ConnectionRate < 0 {
		return fmt.Errorf("CONNECTION_RATE_PER_IP must not be negative, got %v", cfg.ConnectionRate)
	}
	if cfg.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive, got %v", cfg.RateLimit)
	}

	return nil
}

// Location returns the parsed EVENT_TIMEZONE.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Origins splits ALLOWED_ORIGINS into trimmed, non-empty entries.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
