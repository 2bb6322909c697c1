package config

import (
	"github.com/mwillis/wspool"
)

// Default values for optional configuration fields.
const (
	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2
	DefaultLogLevel  = "info"
)

func (c *Config) applyDefaults() {
	if c.Pool.GracePeriod == 0 {
		c.Pool.GracePeriod = Duration(wspool.DefaultGracePeriod)
	}
	if c.Pool.MaxConcurrentDials == 0 {
		c.Pool.MaxConcurrentDials = wspool.DefaultMaxConcurrentDials
	}

	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		if ep.Reconnect.MaxAttempts > 1 {
			if ep.Reconnect.BaseDelay == 0 {
				ep.Reconnect.BaseDelay = Duration(wspool.DefaultReconnectBaseDelay)
			}
			if ep.Reconnect.MaxDelay == 0 {
				ep.Reconnect.MaxDelay = Duration(wspool.DefaultReconnectMaxDelay)
			}
		}
	}

	if c.Database.Enabled() {
		applyDBDefaults(&c.Database.Postgres)
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
