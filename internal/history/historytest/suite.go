// Package historytest holds behavior checks shared by every scan.HistoryStore.
package historytest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) scan.HistoryStore

// Record builds a finalized record with n results, started at start.
func Record(id string, start time.Time, status scan.Status, n int) scan.Record {
	ended := start.Add(1500 * time.Millisecond)
	rec := scan.Record{
		ID:        id,
		Request:   scan.Request{Path: "/mnt/evidence", MaxDepth: scan.Unbounded, Threads: 2, ReportFormat: "json"},
		Status:    status,
		StartedAt: start,
		EndedAt:   &ended,
		Counters: scan.Counters{
			FilesExamined:      int64(10 + n),
			DirectoriesVisited: 3,
			BytesScanned:       4096,
			ItemsSkipped:       1,
			Detections:         int64(n),
			MaxDepthReached:    2,
		},
		Results: make([]scan.DetectionResult, 0, n),
	}
	for i := range n {
		rec.Results = append(rec.Results, scan.DetectionResult{
			Path:         fmt.Sprintf("/mnt/evidence/f%d.key", i),
			WalletType:   scan.WalletUnknown,
			Confidence:   0.3 + float64(i)/10,
			Method:       scan.MethodExtension,
			Rule:         "ext:.key",
			Size:         int64(100 + i),
			SampleSHA256: "ab",
			DiscoveredAt: start.Add(time.Duration(i) * time.Millisecond),
		})
	}
	if status == scan.StatusFailed {
		rec.FailureReason = "root vanished"
	}
	return rec
}

// Run exercises the append-only store contract.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("append get summary", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
		rec := Record("scan-1", start, scan.StatusCompleted, 7)
		require.NoError(t, store.Append(ctx, rec))

		got, err := store.Get(ctx, "scan-1")
		require.NoError(t, err)
		require.Equal(t, rec.ID, got.ID)
		require.Equal(t, rec.Request, got.Request)
		require.Equal(t, rec.Counters, got.Counters)
		require.Len(t, got.Results, 7)
		require.True(t, rec.StartedAt.Equal(got.StartedAt))
		require.NotNil(t, got.EndedAt)
		require.Equal(t, rec.Results[3].Path, got.Results[3].Path)

		sum, err := store.Summary(ctx, "scan-1")
		require.NoError(t, err)
		require.Equal(t, 7, sum.ResultCount)
		require.Equal(t, int64(1500), sum.DurationMs)
		require.Equal(t, "/mnt/evidence", sum.RootPath)
		require.Len(t, sum.TopFindings, 5)
		require.InDelta(t, 0.9, sum.TopFindings[0].Confidence, 1e-9)
	})

	t.Run("not found", func(t *testing.T) {
		store := factory(t)
		_, err := store.Get(context.Background(), "missing")
		require.ErrorIs(t, err, scan.ErrNotFound)
		_, err = store.Summary(context.Background(), "missing")
		require.ErrorIs(t, err, scan.ErrNotFound)
	})

	t.Run("append only", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		rec := Record("scan-dup", time.Now().UTC(), scan.StatusStopped, 1)
		require.NoError(t, store.Append(ctx, rec))
		rec.Status = scan.StatusFailed
		require.Error(t, store.Append(ctx, rec))

		got, err := store.Get(ctx, "scan-dup")
		require.NoError(t, err)
		require.Equal(t, scan.StatusStopped, got.Status)
	})

	t.Run("list most recent first", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		statuses := []scan.Status{scan.StatusCompleted, scan.StatusFailed, scan.StatusStopped, scan.StatusCompleted}
		for i, st := range statuses {
			require.NoError(t, store.Append(ctx, Record(fmt.Sprintf("scan-%d", i), base.Add(time.Duration(i)*time.Hour), st, i)))
		}
		list, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, len(statuses))
		for i, s := range list {
			idx := len(statuses) - 1 - i
			require.Equal(t, fmt.Sprintf("scan-%d", idx), s.ID)
			require.Equal(t, statuses[idx], s.Status)
			require.Equal(t, idx, s.ResultCount)

			byID, err := store.Summary(ctx, s.ID)
			require.NoError(t, err)
			require.Equal(t, s.ResultCount, byID.ResultCount)
			require.Equal(t, s.Counters, byID.Counters)
		}
		require.Equal(t, "root vanished", list[2].FailureReason)
	})
}
