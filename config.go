package modkit

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from MODKIT_* environment variables.
type Config struct {
	// Postgres connection URL. Takes precedence over SQLitePath.
	DatabaseURL string `env:"MODKIT_DATABASE_URL"`
	// SQLite database file, used when DatabaseURL is empty.
	SQLitePath string `env:"MODKIT_SQLITE_PATH"`

	MaxWarns int64 `env:"MODKIT_MAX_WARNS" envDefault:"5"`
	// Account that becomes Creator on first registration.
	Creator *int64 `env:"MODKIT_CREATOR"`

	QueryTimeout time.Duration `env:"MODKIT_QUERY_TIMEOUT" envDefault:"5s"`
	Pool         PoolConfig

	LogLevel  string `env:"MODKIT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"MODKIT_LOG_FORMAT" envDefault:"text"`
}

// PoolConfig holds the Postgres connection pool settings.
type PoolConfig struct {
	MaxOpenConnections    int           `env:"MODKIT_DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConnections    int           `env:"MODKIT_DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnectionMaxLifetime time.Duration `env:"MODKIT_DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnectionMaxIdleTime time.Duration `env:"MODKIT_DB_CONN_MAX_IDLE_TIME" envDefault:"5m"`
}

// DefaultPoolConfig returns the pool settings used when nothing is configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConnections:    25,
		MaxIdleConnections:    5,
		ConnectionMaxLifetime: 30 * time.Minute,
		ConnectionMaxIdleTime: 5 * time.Minute,
	}
}

// LoadConfig reads Config from the process environment.
func LoadConfig() (Config, error) {
	return parseConfig(env.Options{})
}

// LoadConfigFrom reads Config from the given variables instead of the process
// environment.
func LoadConfigFrom(vars map[string]string) (Config, error) {
	return parseConfig(env.Options{Environment: vars})
}

func parseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that the environment parser cannot express.
func (c Config) Validate() error {
	if c.MaxWarns < 1 {
		return fmt.Errorf("MODKIT_MAX_WARNS must be at least 1, got %d", c.MaxWarns)
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("MODKIT_QUERY_TIMEOUT must not be negative")
	}
	if c.Pool.MaxIdleConnections > c.Pool.MaxOpenConnections && c.Pool.MaxOpenConnections > 0 {
		return fmt.Errorf("MODKIT_DB_MAX_IDLE_CONNS (%d) exceeds MODKIT_DB_MAX_OPEN_CONNS (%d)",
			c.Pool.MaxIdleConnections, c.Pool.MaxOpenConnections)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("MODKIT_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ServiceOptions translates the configuration into Service options.
func (c Config) ServiceOptions(logger *slog.Logger) []ServiceOption {
	return []ServiceOption{
		WithMaxWarns(c.MaxWarns),
		WithRolePolicy(CreatorPolicy(c.Creator)),
		WithLogger(logger),
	}
}

// NewLogger builds the structured logger described by LogLevel and LogFormat.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("MODKIT_LOG_LEVEL: %w", err)
	}
	return level, nil
}
