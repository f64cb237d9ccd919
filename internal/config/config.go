// Package config loads and validates sawdisk configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Detector DetectorConfig `mapstructure:"detector"`
	History  HistoryConfig  `mapstructure:"history"`
	Reports  ReportsConfig  `mapstructure:"reports"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Mounts   MountsConfig   `mapstructure:"mounts"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScanConfig governs the worker pool and per-scan limits.
type ScanConfig struct {
	DefaultThreads   int           `mapstructure:"default_threads"`
	MaxThreads       int           `mapstructure:"max_threads"`
	DefaultMaxDepth  int           `mapstructure:"default_max_depth"`
	QueueDepth       int           `mapstructure:"queue_depth"`
	ResultQueueDepth int           `mapstructure:"result_queue_depth"`
	SampleBytes      int           `mapstructure:"sample_bytes"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	MaxFileSize      int64         `mapstructure:"max_file_size"`
	FilesPerSecond   float64       `mapstructure:"files_per_second"`
	ThrottleBurst    int           `mapstructure:"throttle_burst"`
	SkipDirs         []string      `mapstructure:"skip_dirs"`
	TopFindings      int           `mapstructure:"top_findings"`
	FinalizeTimeout  time.Duration `mapstructure:"finalize_timeout"`
}

// DetectorConfig toggles classifier strategies.
type DetectorConfig struct {
	ExtraExtensions []string `mapstructure:"extra_extensions"`
	DisableContent  bool     `mapstructure:"disable_content"`
}

// History drivers.
const (
	HistorySQLite   = "sqlite"
	HistoryPostgres = "postgres"
	HistoryMemory   = "memory"
)

// HistoryConfig selects and configures the durable history store.
type HistoryConfig struct {
	Driver           string `mapstructure:"driver"`
	SQLitePath       string `mapstructure:"sqlite_path"`
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	PostgresMaxConns int32  `mapstructure:"postgres_max_conns"`
}

// Report providers.
const (
	ReportsLocal  = "local"
	ReportsGCS    = "gcs"
	ReportsMemory = "memory"
	ReportsNone   = "none"
)

// ReportsConfig sets where report artifacts are written.
type ReportsConfig struct {
	Provider  string `mapstructure:"provider"`
	Format    string `mapstructure:"format"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// Notify providers.
const (
	NotifyPubSub = "pubsub"
	NotifyMemory = "memory"
	NotifyNone   = "none"
)

// NotifyConfig holds metadata for finalized-scan notifications.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MountsConfig tunes mount enumeration.
type MountsConfig struct {
	Limit       int           `mapstructure:"limit"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	IncludeRoot bool          `mapstructure:"include_root"`
}

// ProgressConfig controls the progress hub.
type ProgressConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchEvents   int           `mapstructure:"batch_events"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggingConfig toggles zap development features and optional file output.
type LoggingConfig struct {
	Development    bool   `mapstructure:"development"`
	Level          string `mapstructure:"level"`
	File           string `mapstructure:"file"`
	FileMaxSizeMB  int    `mapstructure:"file_max_size_mb"`
	FileMaxBackups int    `mapstructure:"file_max_backups"`
	FileMaxAgeDays int    `mapstructure:"file_max_age_days"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SAWDISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.stream_interval", 500*time.Millisecond)
	v.SetDefault("scan.default_threads", 4)
	v.SetDefault("scan.max_threads", 32)
	v.SetDefault("scan.default_max_depth", -1)
	v.SetDefault("scan.queue_depth", 1024)
	v.SetDefault("scan.result_queue_depth", 256)
	v.SetDefault("scan.sample_bytes", 4096)
	v.SetDefault("scan.read_timeout", 2*time.Second)
	v.SetDefault("scan.max_file_size", int64(512<<20))
	v.SetDefault("scan.files_per_second", 0)
	v.SetDefault("scan.throttle_burst", 16)
	v.SetDefault("scan.skip_dirs", []string{".Spotlight-V100", ".Trashes", ".TemporaryItems", ".fseventsd"})
	v.SetDefault("scan.top_findings", 5)
	v.SetDefault("scan.finalize_timeout", 30*time.Second)
	v.SetDefault("detector.disable_content", false)
	v.SetDefault("history.driver", HistorySQLite)
	v.SetDefault("history.sqlite_path", "sawdisk_data/history.db")
	v.SetDefault("history.postgres_max_conns", 4)
	v.SetDefault("reports.provider", ReportsLocal)
	v.SetDefault("reports.format", "html")
	v.SetDefault("reports.base_dir", "sawdisk_data/reports")
	v.SetDefault("reports.prefix", "reports")
	v.SetDefault("notify.provider", NotifyNone)
	v.SetDefault("notify.topic", "sawdisk-scans")
	v.SetDefault("mounts.limit", 50)
	v.SetDefault("mounts.cache_ttl", 30*time.Second)
	v.SetDefault("mounts.include_root", false)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.batch_events", 500)
	v.SetDefault("progress.flush_interval", 250*time.Millisecond)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file_max_size_mb", 50)
	v.SetDefault("logging.file_max_backups", 3)
	v.SetDefault("logging.file_max_age_days", 28)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Scan.MaxThreads <= 0 {
		return errors.New("scan.max_threads must be > 0")
	}
	if c.Scan.DefaultThreads <= 0 || c.Scan.DefaultThreads > c.Scan.MaxThreads {
		return errors.New("scan.default_threads must be between 1 and scan.max_threads")
	}
	if c.Scan.DefaultMaxDepth < -1 {
		return errors.New("scan.default_max_depth must be >= -1")
	}
	if c.Scan.SampleBytes <= 0 {
		return errors.New("scan.sample_bytes must be > 0")
	}
	if c.Scan.FilesPerSecond < 0 {
		return errors.New("scan.files_per_second must be >= 0")
	}
	switch c.History.Driver {
	case HistorySQLite:
		if c.History.SQLitePath == "" {
			return errors.New("history.sqlite_path must be set for the sqlite driver")
		}
	case HistoryPostgres:
		if c.History.PostgresDSN == "" {
			return errors.New("history.postgres_dsn must be set for the postgres driver")
		}
	case HistoryMemory:
	default:
		return fmt.Errorf("history.driver %q is not supported", c.History.Driver)
	}
	switch c.Reports.Provider {
	case ReportsLocal:
		if c.Reports.BaseDir == "" {
			return errors.New("reports.base_dir must be set for the local provider")
		}
	case ReportsGCS:
		if c.Reports.GCSBucket == "" {
			return errors.New("reports.gcs_bucket must be set for the gcs provider")
		}
	case ReportsMemory, ReportsNone:
	default:
		return fmt.Errorf("reports.provider %q is not supported", c.Reports.Provider)
	}
	switch c.Notify.Provider {
	case NotifyPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return errors.New("notify.project_id and notify.topic must be set for the pubsub provider")
		}
	case NotifyMemory, NotifyNone:
	default:
		return fmt.Errorf("notify.provider %q is not supported", c.Notify.Provider)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ReportFormat returns the default report format, or "" when reporting is off.
func (c Config) ReportFormat() string {
	if c.Reports.Provider == ReportsNone {
		return ""
	}
	return c.Reports.Format
}
