package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sawdisk/internal/history/historytest"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

func TestStoreContract(t *testing.T) {
	t.Parallel()

	historytest.Run(t, func(*testing.T) scan.HistoryStore {
		return NewStore(5)
	})
}

func TestStoreRejectsRunningRecords(t *testing.T) {
	t.Parallel()

	s := NewStore(5)
	rec := historytest.Record("live", time.Now(), scan.StatusRunning, 0)
	require.Error(t, s.Append(context.Background(), rec))
}

func TestStoreCopiesOnReadAndWrite(t *testing.T) {
	t.Parallel()

	s := NewStore(5)
	rec := historytest.Record("a", time.Now(), scan.StatusCompleted, 2)
	require.NoError(t, s.Append(context.Background(), rec))
	rec.Results[0].Path = "mutated"

	got, err := s.Get(context.Background(), "a")
	require.NoError(t, err)
	require.NotEqual(t, "mutated", got.Results[0].Path)
	got.Results[1].Path = "mutated"

	again, err := s.Get(context.Background(), "a")
	require.NoError(t, err)
	require.NotEqual(t, "mutated", again.Results[1].Path)

	require.NoError(t, s.Close())
	require.Error(t, s.Append(context.Background(), historytest.Record("b", time.Now(), scan.StatusCompleted, 0)))
}
