package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/pricing-research/internal/research"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.StorageMode() != research.StorageSQLite {
		t.Fatalf("expected SQLITE storage mode, got %v", cfg.StorageMode())
	}
	if got := cfg.UpdateDelay(); got != 24*time.Hour {
		t.Fatalf("expected update delay 24h, got %v", got)
	}
	if got := cfg.DefaultCrawlDelay(); got != time.Second {
		t.Fatalf("expected default crawl delay 1s, got %v", got)
	}
	if len(cfg.Collector.UserAgents) == 0 {
		t.Fatalf("expected default user agents")
	}
	if cfg.Browser.Engine != EngineChromedp {
		t.Fatalf("expected chromedp engine, got %q", cfg.Browser.Engine)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout_seconds: 60
auth:
  enabled: true
  api_key: secret
logging:
  development: false
research:
  update_delay_seconds: 3600
  persist_timeout_seconds: 5
storage:
  mode: POSTGRESQL
  table: research_v2
  postgres:
    host: db.internal
    user: pricing
    password: hunter2
    name: pricing
    params:
      sslmode: disable
collector:
  user_agents: ["agent-a", "agent-b"]
  timeout_seconds: 7
  respect_robots: false
browser:
  engine: rod
  max_parallel: 4
archive:
  enabled: true
  backend: gcs
  gcs_bucket: raw-pages
pubsub:
  enabled: true
  project_id: pricing-prod
  topic_name: research-stored
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.RequestTimeout() != time.Minute {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.StorageMode() != research.StoragePostgreSQL {
		t.Fatalf("expected POSTGRESQL mode, got %v", cfg.StorageMode())
	}
	if cfg.Storage.Postgres.Host != "db.internal" || cfg.Storage.Postgres.Port != 5432 {
		t.Fatalf("expected postgres host override with default port, got %+v", cfg.Storage.Postgres)
	}
	if cfg.Storage.Postgres.Params["sslmode"] != "disable" {
		t.Fatalf("expected postgres params, got %+v", cfg.Storage.Postgres.Params)
	}
	if got := cfg.UpdateDelay(); got != time.Hour {
		t.Fatalf("expected update delay 1h, got %v", got)
	}
	if cfg.Collector.RespectRobots || len(cfg.Collector.UserAgents) != 2 {
		t.Fatalf("expected collector overrides, got %+v", cfg.Collector)
	}
	if cfg.Browser.Engine != EngineRod || cfg.Browser.MaxParallel != 4 {
		t.Fatalf("expected browser overrides, got %+v", cfg.Browser)
	}
	if cfg.Archive.GCSBucket != "raw-pages" || cfg.PubSub.ProjectID != "pricing-prod" {
		t.Fatalf("expected archive and pubsub overrides")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PRICING_STORAGE_MODE", "5")
	t.Setenv("PRICING_RESEARCH_UPDATE_DELAY_SECONDS", "120")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageMode() != research.StorageMemory {
		t.Fatalf("expected MEMORY mode from env, got %v", cfg.StorageMode())
	}
	if got := cfg.UpdateDelay(); got != 2*time.Minute {
		t.Fatalf("expected update delay 2m, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		Storage:   StorageConfig{Mode: "MEMORY"},
		Collector: CollectorConfig{TimeoutSeconds: 10, UserAgents: []string{"ua"}},
		Browser:   BrowserConfig{Engine: EngineChromedp, MaxParallel: 1},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "negative delay", mutate: func(c *Config) { c.Research.UpdateDelaySeconds = -1 }, want: "research.update_delay_seconds"},
		{name: "unknown storage mode", mutate: func(c *Config) { c.Storage.Mode = "MONGO" }, want: "storage.mode"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Mode = "SQLITE" }, want: "storage.sqlite.path"},
		{name: "collector timeout", mutate: func(c *Config) { c.Collector.TimeoutSeconds = 0 }, want: "collector.timeout_seconds"},
		{name: "no user agents", mutate: func(c *Config) { c.Collector.UserAgents = nil }, want: "collector.user_agents"},
		{name: "browser engine", mutate: func(c *Config) { c.Browser.Engine = "selenium" }, want: "browser.engine"},
		{name: "browser parallel", mutate: func(c *Config) { c.Browser.MaxParallel = 0 }, want: "browser.max_parallel"},
		{
			name: "gcs archive without bucket",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Backend = BackendGCS
			},
			want: "archive.gcs_bucket",
		},
		{
			name: "unknown archive backend",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Backend = "s3"
			},
			want: "archive.backend",
		},
		{
			name: "pubsub without project",
			mutate: func(c *Config) {
				c.PubSub.Enabled = true
				c.PubSub.Backend = BackendPubSub
			},
			want: "pubsub.project_id",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Collector.UserAgents = append([]string(nil), base.Collector.UserAgents...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
