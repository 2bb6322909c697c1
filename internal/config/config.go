package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mwillis/wspool"
)

// Config is the poolrun configuration file.
type Config struct {
	Pool      PoolConfig       `yaml:"pool"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Database  DatabaseConfig   `yaml:"database"`
	Log       LogConfig        `yaml:"log"`
}

// PoolConfig holds supervisor settings.
type PoolConfig struct {
	GracePeriod        Duration `yaml:"grace_period"`
	MaxConcurrentDials int64    `yaml:"max_concurrent_dials"`
}

// EndpointConfig describes one WebSocket endpoint to connect.
type EndpointConfig struct {
	URL string `yaml:"url"`

	// IdleTimeout bounds the wait for the next message. Omitted means the
	// default; an explicit "0s" expires immediately; negative disables.
	IdleTimeout *Duration `yaml:"idle_timeout"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig bounds automatic reconnection for one endpoint.
type ReconnectConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
}

// DatabaseConfig holds the optional outcome store connection.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// Enabled reports whether outcome recording is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Postgres.Host != ""
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name to a slog level.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// or from bare integers interpreted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Spec builds a task spec for this endpoint. The handler is supplied by the
// caller; pool-level grace period applies per task.
func (e EndpointConfig) Spec(handler wspool.MessageHandler, pool PoolConfig) wspool.Spec {
	spec := wspool.Spec{
		URL:         e.URL,
		OnMessage:   handler,
		IdleTimeout: wspool.DefaultIdleTimeout,
		GracePeriod: pool.GracePeriod.Std(),
		Reconnect: wspool.ReconnectPolicy{
			MaxAttempts: e.Reconnect.MaxAttempts,
			BaseDelay:   e.Reconnect.BaseDelay.Std(),
			MaxDelay:    e.Reconnect.MaxDelay.Std(),
		},
	}
	if e.IdleTimeout != nil {
		spec.IdleTimeout = e.IdleTimeout.Std()
	}
	return spec
}

// PoolSettings converts the pool section to a supervisor config.
func (c *Config) PoolSettings() wspool.Config {
	return wspool.Config{
		GracePeriod:        c.Pool.GracePeriod.Std(),
		MaxConcurrentDials: c.Pool.MaxConcurrentDials,
	}
}
