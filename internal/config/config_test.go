package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "redis:\n  addr: \"localhost:6379\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Address != DefaultServerAddress {
		t.Errorf("server.address = %q, want %q", cfg.Server.Address, DefaultServerAddress)
	}
	if cfg.Watch.HistoryLimit != DefaultHistoryLimit {
		t.Errorf("watch.history_limit = %d, want %d", cfg.Watch.HistoryLimit, DefaultHistoryLimit)
	}
	if cfg.Watch.PurgeGrace != DefaultPurgeGrace {
		t.Errorf("watch.purge_grace = %v, want %v", cfg.Watch.PurgeGrace, DefaultPurgeGrace)
	}
	if cfg.Transport.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("transport.reconnect_delay = %v, want %v", cfg.Transport.ReconnectDelay, DefaultReconnectDelay)
	}
	if cfg.Transport.MaxReconnectDelay != DefaultMaxReconnectDelay {
		t.Errorf("transport.max_reconnect_delay = %v, want %v", cfg.Transport.MaxReconnectDelay, DefaultMaxReconnectDelay)
	}
	if cfg.Transport.MaxAttempts != 0 {
		t.Errorf("transport.max_attempts = %d, want 0 (retry forever)", cfg.Transport.MaxAttempts)
	}
}

func TestLoadParsesValues(t *testing.T) {
	path := writeConfig(t, `
debug: true
redis:
  addr: "redis:6379"
  db: 2
watch:
  owner_id: "u1"
  history_limit: 10
  purge_grace: "250ms"
transport:
  reconnect_delay: "500ms"
  max_reconnect_delay: "4s"
  max_attempts: 5
hydrate:
  base_url: "http://backend:5000"
  timeout: "3s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Debug {
		t.Error("debug = false, want true")
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("redis.db = %d, want 2", cfg.Redis.DB)
	}
	if cfg.Watch.OwnerID != "u1" {
		t.Errorf("watch.owner_id = %q, want u1", cfg.Watch.OwnerID)
	}
	if cfg.Watch.PurgeGrace != 250*time.Millisecond {
		t.Errorf("watch.purge_grace = %v, want 250ms", cfg.Watch.PurgeGrace)
	}
	if cfg.Transport.MaxAttempts != 5 {
		t.Errorf("transport.max_attempts = %d, want 5", cfg.Transport.MaxAttempts)
	}
	if cfg.Hydrate.Timeout != 3*time.Second {
		t.Errorf("hydrate.timeout = %v, want 3s", cfg.Hydrate.Timeout)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing redis addr",
			content: "debug: false\n",
		},
		{
			name:    "all and owner are exclusive",
			content: "redis:\n  addr: \"localhost:6379\"\nwatch:\n  all: true\n  owner_id: \"u1\"\n",
		},
		{
			name:    "negative max attempts",
			content: "redis:\n  addr: \"localhost:6379\"\ntransport:\n  max_attempts: -1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() error = nil, want validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "redis:\n  addr: \"localhost:6379\"\n")

	t.Setenv("REDIS_ADDR", "override:6380")
	t.Setenv("BLOCKWATCH_OWNER_ID", "u9")
	t.Setenv("BLOCKWATCH_PORT", "9999")
	t.Setenv("APP_DEBUG", "yes")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Redis.Addr != "override:6380" {
		t.Errorf("redis.addr = %q, want override:6380", cfg.Redis.Addr)
	}
	if cfg.Watch.OwnerID != "u9" {
		t.Errorf("watch.owner_id = %q, want u9", cfg.Watch.OwnerID)
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("server.address = %q, want :9999", cfg.Server.Address)
	}
	if !cfg.Debug {
		t.Error("debug = false, want true from APP_DEBUG")
	}
}
