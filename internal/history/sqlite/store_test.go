package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/history/historytest"
	"github.com/JakeFAU/sawdisk/internal/history/migrate"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

func openTemp(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(context.Background(), Config{Path: path}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	historytest.Run(t, func(t *testing.T) scan.HistoryStore {
		return openTemp(t, filepath.Join(t.TempDir(), "history.db"))
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()
	start := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)

	first, err := Open(ctx, Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, first.Append(ctx, historytest.Record("scan-a", start, scan.StatusCompleted, 3)))
	require.NoError(t, first.Append(ctx, historytest.Record("scan-b", start.Add(time.Hour), scan.StatusStopped, 1)))
	require.NoError(t, first.Close())

	second := openTemp(t, path)
	list, err := second.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "scan-b", list[0].ID)
	require.Equal(t, "scan-a", list[1].ID)

	rec, err := second.Get(ctx, "scan-a")
	require.NoError(t, err)
	require.Len(t, rec.Results, 3)
	require.True(t, start.Equal(rec.StartedAt))

	// Migrations are idempotent and appends keep working after reopen.
	require.NoError(t, second.Append(ctx, historytest.Record("scan-c", start.Add(2*time.Hour), scan.StatusFailed, 0)))
	list, err = second.List(ctx)
	require.NoError(t, err)
	require.Equal(t, "scan-c", list[0].ID)
}

func TestStoreRejectsRunningRecords(t *testing.T) {
	t.Parallel()

	store := openTemp(t, filepath.Join(t.TempDir(), "history.db"))
	err := store.Append(context.Background(), historytest.Record("live", time.Now(), scan.StatusRunning, 1))
	require.Error(t, err)
	_, err = store.Get(context.Background(), "live")
	require.ErrorIs(t, err, scan.ErrNotFound)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{}, nil)
	require.Error(t, err)
}

func TestOpenAppliesSchemaVersion(t *testing.T) {
	t.Parallel()

	store := openTemp(t, filepath.Join(t.TempDir(), "history.db"))
	v, err := migrate.Version(store.db, "sqlite3")
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
}

func TestPingAfterClose(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "history.db")}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
	require.Error(t, store.Ping(context.Background()))
}
