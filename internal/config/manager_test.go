package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "telegram": {"token": "123:abc", "admin_user_ids": [42]},
  "logging": {"level": "debug", "console": true},
  "upstream": {
    "poll": {"enabled": true, "feeds": {"main": "https://example.com/flights"}, "interval": "3s"},
    "stream": {"enabled": true, "url": "wss://example.com/ws"}
  },
  "dispatch": {"rate_per_sec": 5, "send_timeout": "10s"},
  "storage": {"path": "/tmp/flightwatch.db"}
}`

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

func TestLoadValidJSON(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", validJSON)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || len(cfg.Telegram.AdminUserIDs) != 1 {
		t.Fatalf("telegram section mismatch: %+v", cfg.Telegram)
	}
	if !cfg.Upstream.Poll.Enabled || cfg.Upstream.Poll.Feeds["main"] == "" {
		t.Fatalf("poll section mismatch: %+v", cfg.Upstream.Poll)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestYAMLAndJSONParseIdentically(t *testing.T) {
	t.Parallel()
	yamlBody := `telegram:
  token: "123:abc"
  admin_user_ids: [42]
logging:
  level: debug
  console: true
upstream:
  poll:
    enabled: true
    feeds:
      main: https://example.com/flights
    interval: 3s
  stream:
    enabled: true
    url: wss://example.com/ws
dispatch:
  rate_per_sec: 5
  send_timeout: 10s
storage:
  path: /tmp/flightwatch.db
`
	fromJSON, err := writeConfig(t, "config.json", validJSON).Load()
	if err != nil {
		t.Fatalf("json load: %v", err)
	}
	fromYAML, err := writeConfig(t, "config.yaml", yamlBody).Load()
	if err != nil {
		t.Fatalf("yaml load: %v", err)
	}
	if !reflect.DeepEqual(fromJSON, fromYAML) {
		t.Fatalf("json and yaml configs differ:\n%+v\n%+v", fromJSON, fromYAML)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{"telegram": {"token": "x", "typo_field": 1}}`)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", validJSON+`{"extra": true}`)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected trailing-data error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() Config {
		return Config{
			Telegram: TelegramConfig{Token: "123:abc"},
			Upstream: UpstreamConfig{
				Stream: StreamConfig{Enabled: true, URL: "wss://example.com/ws"},
			},
			Storage: StorageConfig{Path: "/tmp/db"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = " " }, wantErr: true},
		{name: "missing storage path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: true},
		{name: "no upstream", mutate: func(c *Config) { c.Upstream.Stream.Enabled = false }, wantErr: true},
		{name: "poll without feeds", mutate: func(c *Config) {
			c.Upstream.Stream.Enabled = false
			c.Upstream.Poll.Enabled = true
		}, wantErr: true},
		{name: "stream without url", mutate: func(c *Config) { c.Upstream.Stream.URL = "" }, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestWatchPublishesChangedConfig(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", validJSON)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Watch(ctx)
	}()

	// Give the watcher a moment to arm before mutating the file.
	time.Sleep(300 * time.Millisecond)
	changed := strings.Replace(validJSON, `"level": "debug"`, `"level": "warn"`, 1)
	if err := os.WriteFile(m.path, []byte(changed), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("published level = %q, want warn", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload publish")
	}

	// An invalid rewrite is rejected and keeps the last good config.
	if err := os.WriteFile(m.path, []byte(`{"broken":`), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	time.Sleep(600 * time.Millisecond)
	if got := m.Get(); got.Logging.Level != "warn" {
		t.Fatalf("invalid reload replaced config: %+v", got.Logging)
	}

	cancel()
	<-done
}

func TestDurations(t *testing.T) {
	t.Parallel()
	var cfg Config
	cfg.Upstream.Poll.Interval = "1m30s"

	d, err := cfg.Durations()
	if err != nil {
		t.Fatalf("durations: %v", err)
	}
	if d.PollInterval != 90*time.Second {
		t.Fatalf("PollInterval = %v, want 1m30s", d.PollInterval)
	}
	// Blank fields resolve to their defaults.
	if d.DispatchSendTimeout != 10*time.Second || d.StorageBusyTimeout != 5*time.Second {
		t.Fatalf("defaults not applied: %+v", d)
	}
	if d.AuditRetention != 30*24*time.Hour {
		t.Fatalf("AuditRetention = %v, want 720h", d.AuditRetention)
	}

	cfg.Dispatch.SendTimeout = "nope"
	if _, err := cfg.Durations(); err == nil {
		t.Fatal("expected parse error")
	}
	cfg.Dispatch.SendTimeout = "-3s"
	if _, err := cfg.Durations(); err == nil {
		t.Fatal("expected negative-duration error")
	}
}

func TestValidateRejectsBadDuration(t *testing.T) {
	t.Parallel()
	cfg := Config{
		Telegram: TelegramConfig{Token: "123:abc"},
		Upstream: UpstreamConfig{
			Stream: StreamConfig{Enabled: true, URL: "wss://example.com/ws", PingInterval: "soon"},
		},
		Storage: StorageConfig{Path: "/tmp/db"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("config with an unparsable duration must not validate")
	}
}
