package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/app"
	"github.com/JakeFAU/sawdisk/internal/config"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
		return app.Build(ctx, cfg,
			app.WithLogger(zap.NewNop()),
			app.WithRegisterer(prometheus.NewRegistry()),
		)
	}
	os.Exit(m.Run())
}

var scanIDPattern = regexp.MustCompile(`\(scan ([0-9a-f-]{36})\)`)

func writeConfig(t *testing.T, history string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
history:
  driver: %s
  sqlite_path: %s
reports:
  provider: local
  base_dir: %s
  format: json
notify:
  provider: none
`, history, filepath.Join(dir, "history.db"), filepath.Join(dir, "reports"))
	path := filepath.Join(dir, "sawdisk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func evidenceDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "wallet.dat"), make([]byte, 4096), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "notes.txt"), []byte("grocery list"), 0o600))
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScanCommandPrintsFindings(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, config.HistoryMemory)
	out, err := execute(t, "--config", cfgPath, "scan", "--path", evidenceDir(t), "--verbose")
	require.NoError(t, err, out)

	assert.Contains(t, out, "High confidence")
	assert.Contains(t, out, "bitcoin_core")
	assert.Contains(t, out, "wallet.dat")
	assert.Contains(t, out, "rule=name:wallet.dat")
	assert.Contains(t, out, "completed with 1 candidates")
	assert.Contains(t, out, "Report: file://")
	assert.NotContains(t, out, "notes.txt")
}

func TestScanCommandFailedScanExitsNonZero(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, config.HistoryMemory)
	missing := filepath.Join(t.TempDir(), "not-mounted")
	out, err := execute(t, "--config", cfgPath, "scan", "--path", missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	assert.Contains(t, out, "No wallet or key material candidates found")
}

func TestScanCommandRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "--config", writeConfig(t, config.HistoryMemory), "scan")
	require.ErrorContains(t, err, `required flag(s) "path" not set`)
}

func TestScanCommandBadConfig(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"), "scan", "--path", ".")
	require.ErrorContains(t, err, "load config")
}

func TestHistoryCommandsReadPersistedScans(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, config.HistorySQLite)
	out, err := execute(t, "--config", cfgPath, "scan", "--path", evidenceDir(t), "--depth", "0")
	require.NoError(t, err, out)
	match := scanIDPattern.FindStringSubmatch(out)
	require.Len(t, match, 2, out)
	id := match[1]

	out, err = execute(t, "--config", cfgPath, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "SCAN ID")
	assert.Contains(t, out, id)
	assert.Contains(t, out, string(scan.StatusCompleted))

	out, err = execute(t, "--config", cfgPath, "history", "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "wallet.dat")
	assert.Contains(t, out, "Report: file://")

	out, err = execute(t, "--config", cfgPath, "history", "show", "--json", id)
	require.NoError(t, err)
	var rec scan.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, 0, rec.Request.MaxDepth)
	assert.Equal(t, int64(1), rec.Counters.FilesExamined)

	_, err = execute(t, "--config", cfgPath, "history", "show", "0190a6f2-0000-7000-8000-000000000000")
	require.ErrorContains(t, err, "not found")
}

func TestHistoryListEmpty(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "--config", writeConfig(t, config.HistoryMemory), "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No scans recorded yet")
}
