package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
log:
  level: debug
  format: json
store:
  driver: sqlite
sqlite:
  path: /tmp/quiz.db
redis:
  addr: localhost:6379
engine:
  decay_after: 2m
  rate_limit: 5
  state_ttl: 1m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Log.Format != "json" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Driver() != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %s", cfg.Driver())
	}
	if cfg.Engine.Decay() != 2*time.Minute || cfg.Engine.Limit() != 5 || cfg.Engine.State() != time.Minute {
		t.Fatalf("unexpected engine settings: %+v", cfg.Engine)
	}
	if cfg.Engine.Window() != time.Minute || cfg.Engine.Idempotency() != 24*time.Hour {
		t.Fatalf("expected defaults for unset durations")
	}
}

func TestDriverDefaults(t *testing.T) {
	var cfg Config
	if cfg.Driver() != DriverMemory {
		t.Fatalf("expected memory without postgres url, got %s", cfg.Driver())
	}
	cfg.Postgres.URL = "postgres://localhost/quiz"
	if cfg.Driver() != DriverPostgres {
		t.Fatalf("expected postgres with url, got %s", cfg.Driver())
	}
	if cfg.Engine.Limit() != 20 || cfg.Engine.Leaderboard() != 30*time.Second {
		t.Fatalf("unexpected engine defaults")
	}
}

func TestLoadRejectsIncompleteDriver(t *testing.T) {
	for name, body := range map[string]string{
		"postgres without url": "store:\n  driver: postgres\n",
		"sqlite without path":  "store:\n  driver: sqlite\n",
		"unknown driver":       "store:\n  driver: mongo\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := TTLDuration("bogus", time.Second); got != time.Second {
		t.Fatalf("expected fallback on parse error, got %s", got)
	}
	if got := TTLDuration("90s", time.Second); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	for name, body := range map[string]string{
		"zero rate window":       "engine:\n  rate_window: 0s\n",
		"negative warm interval": "engine:\n  warm_interval: -15s\n",
		"zero decay":             "engine:\n  decay_after: 0m\n",
		"unparsable state ttl":   "engine:\n  state_ttl: soon\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
