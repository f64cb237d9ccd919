// Package worker implements the per-file classification loop of the pool.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/queue/memory"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

// Source yields file references to classify.
type Source interface {
	Dequeue(ctx context.Context) (scan.FileRef, error)
}

// Sink receives one event per processed file.
type Sink interface {
	Enqueue(ctx context.Context, ev scan.Event) error
}

// Throttle paces reads. It may be nil.
type Throttle interface {
	Wait(ctx context.Context, volume string) error
}

// Config controls Worker behavior.
type Config struct {
	ID int
	// Volume keys the read throttle, normally the scan root.
	Volume string
}

// Worker consumes file references and emits classification events.
type Worker struct {
	source     Source
	sink       Sink
	classifier scan.Classifier
	throttle   Throttle
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	source Source,
	sink Sink,
	classifier scan.Classifier,
	throttle Throttle,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		source:     source,
		sink:       sink,
		classifier: classifier,
		throttle:   throttle,
		cfg:        cfg,
		logger:     logger.With(zap.Int("worker", cfg.ID)),
	}
}

// Run classifies files until the source is drained or ctx is canceled.
// Cancellation is observed between files only: a file that has been picked
// up is always classified and reported.
func (w *Worker) Run(ctx context.Context) error {
	// Emission outlives a stop request so finished work is never lost.
	emitCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		ref, err := w.source.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, memory.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if w.throttle != nil {
			if err := w.throttle.Wait(ctx, w.cfg.Volume); err != nil {
				w.logger.Debug("throttle wait abandoned", zap.String("path", ref.Path), zap.Error(err))
				return nil
			}
		}
		results := w.classifier.Classify(emitCtx, ref)
		if len(results) > 0 {
			w.logger.Debug("file matched",
				zap.String("path", ref.Path),
				zap.Int("results", len(results)),
			)
		}
		ev := scan.Event{
			Kind:    scan.EventFile,
			Path:    ref.Path,
			Depth:   ref.Depth,
			Size:    ref.Size,
			Results: results,
		}
		if err := w.sink.Enqueue(emitCtx, ev); err != nil {
			return err
		}
	}
}
