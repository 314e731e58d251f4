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
	ServerPort  string `env:"SERVER_PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// JWTSecret enables token verification on websocket upgrade. Empty means anonymous connections.
	JWTSecret      string `env:"JWT_SECRET"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	MaxConnections int     `env:"MAX_CONNECTIONS" default:"10000"`
	MaxRoomMembers int     `env:"MAX_ROOM_MEMBERS" default:"500"`
	EventRateLimit float64 `env:"EVENT_RATE_LIMIT" default:"50"`
	EventRateBurst int     `env:"EVENT_RATE_BURST" default:"100"`

	PresenceTTL        time.Duration `env:"PRESENCE_TTL" default:"90s"`
	ActivityLogEnabled bool          `env:"ACTIVITY_LOG_ENABLED" default:"true"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
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
	// Validate required fields
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}

	if cfg.MaxConnections <= 0 {
		return errors.New("MAX_CONNECTIONS must be positive")
	}
	if cfg.MaxRoomMembers < 0 {
		return errors.New("MAX_ROOM_MEMBERS must not be negative")
	}
	if cfg.EventRateLimit <= 0 || cfg.EventRateBurst <= 0 {
		return errors.New("EVENT_RATE_LIMIT and EVENT_RATE_BURST must be positive")
	}
	if cfg.PresenceTTL < time.Second {
		return fmt.Errorf("PRESENCE_TTL must be at least 1s, got %s", cfg.PresenceTTL)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return nil
}

// Origins splits ALLOWED_ORIGINS into a trimmed list.
func (c *Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
