package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const minPollInterval = 100 * time.Millisecond

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int    `env:"DB_MAX_CONNS" default:"0"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	EntryPollInterval      time.Duration `env:"ENTRY_POLL_INTERVAL" default:"3s"`
	MaxSubscribersPerEvent int           `env:"MAX_SUBSCRIBERS_PER_EVENT" default:"500"`

	NotifyWebhookURL   string        `env:"NOTIFY_WEBHOOK_URL"`
	NotifyTimeout      time.Duration `env:"NOTIFY_TIMEOUT" default:"10s"`
	NotifyDedupeWindow time.Duration `env:"NOTIFY_DEDUPE_WINDOW" default:"24h"`

	DrawRateLimit float64 `env:"DRAW_RATE_LIMIT" default:"5"`
	DrawRateBurst int     `env:"DRAW_RATE_BURST" default:"10"`

	// AllowedOrigins is a comma-separated list of browser origins allowed to open the
	// WebSocket feed. Empty allows any origin.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Origins returns AllowedOrigins split and trimmed, without empty items.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, strings.TrimRight(o, "/"))
		}
	}
	return out
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
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}

	if cfg.DBMaxConns < 0 || cfg.DBMaxConns > math.MaxInt32 {
		return errors.New("DB_MAX_CONNS must be between 0 and 2147483647")
	}
	if cfg.EntryPollInterval < minPollInterval {
		return fmt.Errorf("ENTRY_POLL_INTERVAL must be at least %v", minPollInterval)
	}
	if cfg.MaxSubscribersPerEvent <= 0 {
		return errors.New("MAX_SUBSCRIBERS_PER_EVENT must be positive")
	}
	if cfg.NotifyTimeout <= 0 {
		return errors.New("NOTIFY_TIMEOUT must be positive")
	}
	if cfg.NotifyDedupeWindow <= 0 {
		return errors.New("NOTIFY_DEDUPE_WINDOW must be positive")
	}
	if cfg.DrawRateLimit <= 0 || cfg.DrawRateBurst <= 0 {
		return errors.New("DRAW_RATE_LIMIT and DRAW_RATE_BURST must be positive")
	}

	if cfg.NotifyWebhookURL != "" {
		u, err := url.Parse(cfg.NotifyWebhookURL)
		if err != nil {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL is invalid: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("NOTIFY_WEBHOOK_URL must be an absolute http(s) URL")
		}
	}

	for _, o := range cfg.Origins() {
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ALLOWED_ORIGINS contains an invalid origin %q", o)
		}
	}

	return nil
}
