// Package logging includes tests for the zap logger helpers.
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, closer, err := New(Config{Development: true})
	if err != nil {
		t.Fatalf("New(dev) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer closer.Close() //nolint:errcheck // nothing to release
	defer logger.Sync()  //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug enabled in development")
	}
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, _, err := New(Config{Level: "warn"})
	if err != nil {
		t.Fatalf("New(prod) error = %v", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Fatal("expected info disabled at warn level")
	}
}

// TestNewRejectsUnknownLevel guards against silently ignoring typos.
func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

// TestNewWritesRotatedFile checks entries reach the lumberjack file as JSON.
func TestNewWritesRotatedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "sawdisk.log")
	logger, closer, err := New(Config{File: path, Level: "info"})
	if err != nil {
		t.Fatalf("New(file) error = %v", err)
	}
	logger.Info("scan finalized", zap.String("scan_id", "abc"))
	_ = logger.Sync()
	if err := closer.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"scan finalized"`) || !strings.Contains(line, `"scan_id":"abc"`) {
		t.Fatalf("unexpected log file contents: %s", line)
	}
}
