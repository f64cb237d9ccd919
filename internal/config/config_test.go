package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  stream_interval: 1s
auth:
  enabled: true
  api_key: secret
scan:
  default_threads: 2
  max_threads: 6
  default_max_depth: 3
  sample_bytes: 8192
  read_timeout: 5s
  files_per_second: 25
  skip_dirs: [".git", "node_modules"]
detector:
  extra_extensions: [".bak"]
history:
  driver: postgres
  postgres_dsn: postgres://sawdisk@localhost/sawdisk
reports:
  provider: gcs
  gcs_bucket: evidence
  format: json
notify:
  provider: pubsub
  project_id: forensics
  topic: scans
logging:
  development: false
  file: /var/log/sawdisk.log
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.StreamInterval != time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Scan.MaxThreads != 6 || cfg.Scan.DefaultMaxDepth != 3 || cfg.Scan.ReadTimeout != 5*time.Second {
		t.Fatalf("expected scan overrides to apply: %+v", cfg.Scan)
	}
	if cfg.Scan.FilesPerSecond != 25 {
		t.Fatalf("expected files_per_second 25, got %v", cfg.Scan.FilesPerSecond)
	}
	if len(cfg.Scan.SkipDirs) != 2 || cfg.Scan.SkipDirs[1] != "node_modules" {
		t.Fatalf("expected skip_dirs override, got %v", cfg.Scan.SkipDirs)
	}
	if len(cfg.Detector.ExtraExtensions) != 1 {
		t.Fatalf("expected extra extension, got %v", cfg.Detector.ExtraExtensions)
	}
	if cfg.History.Driver != HistoryPostgres || cfg.History.PostgresMaxConns != 4 {
		t.Fatalf("expected postgres history with default pool size: %+v", cfg.History)
	}
	if got := cfg.ReportFormat(); got != "json" {
		t.Fatalf("expected report format json, got %q", got)
	}
	if cfg.Notify.Topic != "scans" || cfg.Logging.Development {
		t.Fatalf("expected notify/logging overrides: %+v %+v", cfg.Notify, cfg.Logging)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scan.DefaultMaxDepth != -1 {
		t.Fatalf("expected unbounded default depth, got %d", cfg.Scan.DefaultMaxDepth)
	}
	if cfg.History.Driver != HistorySQLite || cfg.History.SQLitePath == "" {
		t.Fatalf("expected sqlite history by default: %+v", cfg.History)
	}
	if len(cfg.Scan.SkipDirs) != 4 {
		t.Fatalf("expected volume bookkeeping dirs skipped, got %v", cfg.Scan.SkipDirs)
	}
	if cfg.Mounts.Limit != 50 || cfg.Mounts.CacheTTL != 30*time.Second {
		t.Fatalf("unexpected mounts defaults: %+v", cfg.Mounts)
	}
	if cfg.ReportFormat() != "html" {
		t.Fatalf("expected html reports by default, got %q", cfg.ReportFormat())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SAWDISK_SERVER_PORT", "7070")
	t.Setenv("SAWDISK_HISTORY_DRIVER", "memory")
	t.Setenv("SAWDISK_REPORTS_PROVIDER", "none")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.History.Driver != HistoryMemory {
		t.Fatalf("expected memory history, got %q", cfg.History.Driver)
	}
	if cfg.ReportFormat() != "" {
		t.Fatalf("expected reporting disabled, got %q", cfg.ReportFormat())
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
		Server:  ServerConfig{Port: 8080},
		Scan:    ScanConfig{DefaultThreads: 2, MaxThreads: 4, DefaultMaxDepth: -1, SampleBytes: 4096},
		History: HistoryConfig{Driver: HistoryMemory},
		Reports: ReportsConfig{Provider: ReportsNone},
		Notify:  NotifyConfig{Provider: NotifyNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid max threads", mutate: func(c *Config) { c.Scan.MaxThreads = 0 }, want: "scan.max_threads"},
		{name: "default above max", mutate: func(c *Config) { c.Scan.DefaultThreads = 9 }, want: "scan.default_threads"},
		{name: "invalid depth", mutate: func(c *Config) { c.Scan.DefaultMaxDepth = -2 }, want: "scan.default_max_depth"},
		{name: "invalid sample", mutate: func(c *Config) { c.Scan.SampleBytes = 0 }, want: "scan.sample_bytes"},
		{name: "negative rate", mutate: func(c *Config) { c.Scan.FilesPerSecond = -1 }, want: "scan.files_per_second"},
		{name: "unknown history", mutate: func(c *Config) { c.History.Driver = "bolt" }, want: "history.driver"},
		{name: "sqlite without path", mutate: func(c *Config) { c.History.Driver = HistorySQLite }, want: "history.sqlite_path"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.History.Driver = HistoryPostgres }, want: "history.postgres_dsn"},
		{name: "local without dir", mutate: func(c *Config) { c.Reports.Provider = ReportsLocal }, want: "reports.base_dir"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Reports.Provider = ReportsGCS }, want: "reports.gcs_bucket"},
		{name: "unknown reports", mutate: func(c *Config) { c.Reports.Provider = "s3" }, want: "reports.provider"},
		{name: "pubsub without project", mutate: func(c *Config) { c.Notify.Provider = NotifyPubSub }, want: "notify.project_id"},
		{name: "unknown notify", mutate: func(c *Config) { c.Notify.Provider = "sns" }, want: "notify.provider"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
