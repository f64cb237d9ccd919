package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/queue/memory"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

type fakeClassifier struct {
	mu    sync.Mutex
	calls []string
	hook  func(ref scan.FileRef)
}

func (f *fakeClassifier) Classify(_ context.Context, ref scan.FileRef) []scan.DetectionResult {
	if f.hook != nil {
		f.hook(ref)
	}
	f.mu.Lock()
	f.calls = append(f.calls, ref.Path)
	f.mu.Unlock()
	if ref.Name == "wallet.dat" {
		return []scan.DetectionResult{{Path: ref.Path, WalletType: scan.WalletBitcoinCore, Confidence: 0.9, Method: scan.MethodFilename}}
	}
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []scan.Event
}

func (s *recordingSink) Enqueue(_ context.Context, ev scan.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

type failingSource struct{}

func (failingSource) Dequeue(context.Context) (scan.FileRef, error) {
	return scan.FileRef{}, errors.New("disk on fire")
}

func TestWorkerRunEmitsOneEventPerFile(t *testing.T) {
	t.Parallel()

	files := memory.NewQueue[scan.FileRef](4)
	ctx := context.Background()
	require.NoError(t, files.Enqueue(ctx, scan.FileRef{Path: "/r/wallet.dat", Name: "wallet.dat", Size: 10}))
	require.NoError(t, files.Enqueue(ctx, scan.FileRef{Path: "/r/notes.txt", Name: "notes.txt", Size: 1}))
	files.Close()

	sink := &recordingSink{}
	w := New(files, sink, &fakeClassifier{}, nil, Config{ID: 1}, zap.NewNop())
	require.NoError(t, w.Run(ctx))

	require.Len(t, sink.events, 2)
	require.Equal(t, scan.EventFile, sink.events[0].Kind)
	require.Len(t, sink.events[0].Results, 1)
	require.Empty(t, sink.events[1].Results)
	require.Equal(t, int64(1), sink.events[1].Size)
}

func TestWorkerStopsBetweenFiles(t *testing.T) {
	t.Parallel()

	files := memory.NewQueue[scan.FileRef](4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, p := range []string{"/r/a", "/r/b", "/r/c"} {
		require.NoError(t, files.Enqueue(ctx, scan.FileRef{Path: p}))
	}

	sink := &recordingSink{}
	// Cancel while the first file is being classified; it must still be reported.
	classifier := &fakeClassifier{hook: func(scan.FileRef) { cancel() }}
	w := New(files, sink, classifier, nil, Config{}, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	require.Len(t, sink.events, 1)
	require.Equal(t, "/r/a", sink.events[0].Path)
	require.Equal(t, 2, files.Len())
}

func TestWorkerSourceError(t *testing.T) {
	t.Parallel()

	w := New(failingSource{}, &recordingSink{}, &fakeClassifier{}, nil, Config{}, nil)
	require.EqualError(t, w.Run(context.Background()), "disk on fire")
}
