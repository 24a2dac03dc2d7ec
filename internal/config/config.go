package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Questions struct {
		Path string `yaml:"path"`
	} `yaml:"questions"`
	Engine Engine `yaml:"engine"`
}

// Engine holds the tunables of the progression engine as duration strings.
type Engine struct {
	DecayAfter       string `yaml:"decay_after"`
	RateLimit        int    `yaml:"rate_limit"`
	RateWindow       string `yaml:"rate_window"`
	IdempotencyTTL   string `yaml:"idempotency_ttl"`
	StateTTL         string `yaml:"state_ttl"`
	MetricsTTL       string `yaml:"metrics_ttl"`
	LeaderboardTTL   string `yaml:"leaderboard_ttl"`
	WarmInterval     string `yaml:"warm_interval"`
	QuestionCacheTTL string `yaml:"question_cache_ttl"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Driver returns the configured store driver, defaulting to postgres when a URL
// is set and to memory otherwise.
func (c Config) Driver() string {
	if c.Store.Driver != "" {
		return c.Store.Driver
	}
	if c.Postgres.URL != "" {
		return DriverPostgres
	}
	return DriverMemory
}

// Validate rejects driver settings that cannot be served.
func (c Config) Validate() error {
	switch c.Driver() {
	case DriverMemory:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("store driver %q needs postgres.url", DriverPostgres)
		}
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("store driver %q needs sqlite.path", DriverSQLite)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Engine.RateLimit < 0 {
		return fmt.Errorf("engine.rate_limit must not be negative")
	}
	return c.Engine.validateDurations()
}

// validateDurations rejects set durations that do not parse or are not positive.
func (e Engine) validateDurations() error {
	fields := []struct{ name, raw string }{
		{"decay_after", e.DecayAfter},
		{"rate_window", e.RateWindow},
		{"idempotency_ttl", e.IdempotencyTTL},
		{"state_ttl", e.StateTTL},
		{"metrics_ttl", e.MetricsTTL},
		{"leaderboard_ttl", e.LeaderboardTTL},
		{"warm_interval", e.WarmInterval},
		{"question_cache_ttl", e.QuestionCacheTTL},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("engine.%s: %w", f.name, err)
		}
		if d <= 0 {
			return fmt.Errorf("engine.%s must be positive, got %s", f.name, f.raw)
		}
	}
	return nil
}

// Limit returns the per-window submission ceiling, 20 when unset.
func (e Engine) Limit() int {
	if e.RateLimit == 0 {
		return 20
	}
	return e.RateLimit
}

func (e Engine) Decay() time.Duration       { return TTLDuration(e.DecayAfter, 5*time.Minute) }
func (e Engine) Window() time.Duration      { return TTLDuration(e.RateWindow, time.Minute) }
func (e Engine) Idempotency() time.Duration { return TTLDuration(e.IdempotencyTTL, 24*time.Hour) }
func (e Engine) State() time.Duration       { return TTLDuration(e.StateTTL, 5*time.Minute) }
func (e Engine) Metrics() time.Duration     { return TTLDuration(e.MetricsTTL, time.Minute) }
func (e Engine) Leaderboard() time.Duration { return TTLDuration(e.LeaderboardTTL, 30*time.Second) }
func (e Engine) Warm() time.Duration        { return TTLDuration(e.WarmInterval, 15*time.Second) }
func (e Engine) Questions() time.Duration   { return TTLDuration(e.QuestionCacheTTL, 10*time.Minute) }

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
