package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sawdisk/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "reports", "sawdisk")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.Equal(t, dir, store.Root())
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{BaseDir: "  "})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		dir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(dir, 0o500))
		t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })
		_, err := local.New(local.Config{BaseDir: dir})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	t.Run("WritesNestedReport", func(t *testing.T) {
		uri, err := store.PutObject(context.Background(), "scan-1/report.json", "application/json", strings.NewReader(`{"ok":true}`))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(dir, "scan-1", "report.json"), uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(dir, "scan-1", "report.json"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(got))

		leftovers, err := filepath.Glob(filepath.Join(dir, "scan-1", ".report-*"))
		require.NoError(t, err)
		assert.Empty(t, leftovers)
	})

	t.Run("OverwritesExisting", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "scan-2/report.md", "text/markdown", strings.NewReader("one"))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), "scan-2/report.md", "text/markdown", strings.NewReader("two"))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(dir, "scan-2", "report.md"))
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "text/plain", strings.NewReader("data"))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.txt", "text/plain", strings.NewReader("data"))
		require.ErrorIs(t, err, local.ErrPathTraversal)
	})
}
