package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mwillis/wspool"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poolrun.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
pool:
  grace_period: 2s
  max_concurrent_dials: 16
endpoints:
  - url: wss://stream.example.com/feed
    idle_timeout: 45s
  - url: ws://localhost:9001/ticks
    reconnect:
      max_attempts: 5
      base_delay: 250ms
log:
  level: debug
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pool.GracePeriod.Std() != 2*time.Second {
		t.Errorf("Pool.GracePeriod = %v, want 2s", cfg.Pool.GracePeriod.Std())
	}
	if cfg.Pool.MaxConcurrentDials != 16 {
		t.Errorf("Pool.MaxConcurrentDials = %d, want 16", cfg.Pool.MaxConcurrentDials)
	}
	if len(cfg.Endpoints) != 2 {
		t.Fatalf("len(Endpoints) = %d, want 2", len(cfg.Endpoints))
	}
	if cfg.Endpoints[0].URL != "wss://stream.example.com/feed" {
		t.Errorf("Endpoints[0].URL = %q", cfg.Endpoints[0].URL)
	}
	if cfg.Endpoints[0].IdleTimeout == nil || cfg.Endpoints[0].IdleTimeout.Std() != 45*time.Second {
		t.Errorf("Endpoints[0].IdleTimeout = %v, want 45s", cfg.Endpoints[0].IdleTimeout)
	}
	if cfg.Endpoints[1].IdleTimeout != nil {
		t.Errorf("Endpoints[1].IdleTimeout = %v, want nil (unset)", cfg.Endpoints[1].IdleTimeout)
	}
	if cfg.Endpoints[1].Reconnect.MaxAttempts != 5 {
		t.Errorf("Endpoints[1].Reconnect.MaxAttempts = %d, want 5", cfg.Endpoints[1].Reconnect.MaxAttempts)
	}
	if cfg.Endpoints[1].Reconnect.BaseDelay.Std() != 250*time.Millisecond {
		t.Errorf("Endpoints[1].Reconnect.BaseDelay = %v, want 250ms", cfg.Endpoints[1].Reconnect.BaseDelay.Std())
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_FEED_URL", "wss://feed.example.com/v1")
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
endpoints:
  - url: ${TEST_FEED_URL}
database:
  postgres:
    host: localhost
    name: pool_runs
    user: pooluser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Endpoints[0].URL != "wss://feed.example.com/v1" {
		t.Errorf("Endpoints[0].URL = %q, want expanded value", cfg.Endpoints[0].URL)
	}
	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
endpoints:
  - url: ws://localhost:9001/feed
    reconnect:
      max_attempts: 3
database:
  postgres:
    host: localhost
    name: pool_runs
    user: pooluser
    password: pw
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Pool.GracePeriod.Std() != wspool.DefaultGracePeriod {
		t.Errorf("Pool.GracePeriod = %v, want %v", cfg.Pool.GracePeriod.Std(), wspool.DefaultGracePeriod)
	}
	if cfg.Pool.MaxConcurrentDials != wspool.DefaultMaxConcurrentDials {
		t.Errorf("Pool.MaxConcurrentDials = %d, want %d", cfg.Pool.MaxConcurrentDials, wspool.DefaultMaxConcurrentDials)
	}
	if cfg.Endpoints[0].Reconnect.BaseDelay.Std() != wspool.DefaultReconnectBaseDelay {
		t.Errorf("Reconnect.BaseDelay = %v, want %v", cfg.Endpoints[0].Reconnect.BaseDelay.Std(), wspool.DefaultReconnectBaseDelay)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Database.Postgres.SSLMode != DefaultDBSSLMode {
		t.Errorf("Database.Postgres.SSLMode = %q, want %q", cfg.Database.Postgres.SSLMode, DefaultDBSSLMode)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no endpoints",
			yaml:    `log: {level: info}`,
			wantErr: "at least one endpoint",
		},
		{
			name: "bad scheme",
			yaml: `
endpoints:
  - url: http://example.com/feed
`,
			wantErr: "scheme must be ws or wss",
		},
		{
			name: "missing db user",
			yaml: `
endpoints:
  - url: ws://localhost:9001/feed
database:
  postgres:
    host: localhost
    name: pool_runs
    password: pw
`,
			wantErr: "database.postgres.user is required",
		},
		{
			name: "bad log level",
			yaml: `
endpoints:
  - url: ws://localhost:9001/feed
log:
  level: loud
`,
			wantErr: "log.level",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempFile(t, tc.yaml)
			_, err := LoadAndValidate(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestEndpointSpec(t *testing.T) {
	zero := Duration(0)
	pool := PoolConfig{GracePeriod: Duration(2 * time.Second)}

	ep := EndpointConfig{
		URL:         "ws://localhost:9001/feed",
		IdleTimeout: &zero,
		Reconnect:   ReconnectConfig{MaxAttempts: 4, BaseDelay: Duration(100 * time.Millisecond)},
	}

	spec := ep.Spec(nil, pool)
	if spec.IdleTimeout != 0 {
		t.Errorf("IdleTimeout = %v, want 0 (explicit)", spec.IdleTimeout)
	}
	if spec.GracePeriod != 2*time.Second {
		t.Errorf("GracePeriod = %v, want 2s", spec.GracePeriod)
	}
	if spec.Reconnect.MaxAttempts != 4 {
		t.Errorf("Reconnect.MaxAttempts = %d, want 4", spec.Reconnect.MaxAttempts)
	}

	// Omitted idle timeout gets the library default.
	spec = EndpointConfig{URL: "ws://localhost:9001/feed"}.Spec(nil, pool)
	if spec.IdleTimeout != wspool.DefaultIdleTimeout {
		t.Errorf("IdleTimeout = %v, want %v", spec.IdleTimeout, wspool.DefaultIdleTimeout)
	}
}
