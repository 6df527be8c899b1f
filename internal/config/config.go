// Package config loads service configuration from defaults, an optional
// YAML file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/atmx/roll-engine/internal/logging"
	"github.com/atmx/roll-engine/internal/quote"
)

// FileEnv names the environment variable holding the config file path.
const FileEnv = "ROLL_CONFIG"

var ErrInvalid = errors.New("config: invalid configuration")

// Config holds all configuration for the roll engine service.
type Config struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Store selection: PostgreSQL when DatabaseURL is set, else SQLite when
	// SQLitePath is set, else in-memory. Redis caches either database.
	DatabaseURL string        `mapstructure:"database_url"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
	RedisURL    string        `mapstructure:"redis_url"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`

	Quote QuoteConfig     `mapstructure:",squash"`
	Log   logging.Options `mapstructure:",squash"`
}

// QuoteConfig configures the price provider. Polling is disabled when URL
// is empty.
type QuoteConfig struct {
	URL         string        `mapstructure:"quote_url"`
	PricePath   string        `mapstructure:"quote_price_path"`
	Interval    time.Duration `mapstructure:"quote_interval"`
	Timeout     time.Duration `mapstructure:"quote_timeout"`
	Concurrency int           `mapstructure:"quote_concurrency"`

	// Symbols are polled in addition to those with stored strategies.
	// QUOTE_SYMBOLS is comma separated.
	Symbols []string `mapstructure:"-"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("shutdown_timeout", 5*time.Second)
	v.SetDefault("database_url", "")
	v.SetDefault("sqlite_path", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("redis_ttl", 30*time.Second)

	v.SetDefault("quote_url", "")
	v.SetDefault("quote_price_path", "price")
	v.SetDefault("quote_interval", quote.DefaultInterval)
	v.SetDefault("quote_timeout", 5*time.Second)
	v.SetDefault("quote_concurrency", 4)
	v.SetDefault("quote_symbols", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 5)
	v.SetDefault("log_max_age_days", 28)
}

// Load reads configuration. path may be empty, in which case ROLL_CONFIG is
// consulted; with neither set only defaults and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Quote.Symbols = splitList(v.GetString("quote_symbols"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("%w: port is required", ErrInvalid)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalid)
	}
	if c.RedisURL != "" && c.RedisTTL <= 0 {
		return fmt.Errorf("%w: redis_ttl must be positive", ErrInvalid)
	}
	if c.Quote.Interval <= 0 {
		return fmt.Errorf("%w: quote_interval must be positive", ErrInvalid)
	}
	if c.Quote.Timeout <= 0 {
		return fmt.Errorf("%w: quote_timeout must be positive", ErrInvalid)
	}
	if c.Quote.Concurrency <= 0 {
		return fmt.Errorf("%w: quote_concurrency must be positive", ErrInvalid)
	}
	if c.Quote.URL != "" && !strings.Contains(c.Quote.URL, "{symbol}") {
		return fmt.Errorf("%w: quote_url must contain a {symbol} placeholder", ErrInvalid)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
