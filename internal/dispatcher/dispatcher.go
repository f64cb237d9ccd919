// Package dispatcher runs one scan's worker pool: a walker producer feeding a
// bounded file queue drained by N classification workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sawdisk/internal/queue/memory"
	"github.com/JakeFAU/sawdisk/internal/scan"
	"github.com/JakeFAU/sawdisk/internal/walker"
	"github.com/JakeFAU/sawdisk/internal/worker"
)

// Config sizes the pool.
type Config struct {
	Threads    int
	QueueDepth int
	Root       string
}

// Dispatcher fans file work out to a pool of workers.
type Dispatcher struct {
	walker     *walker.Walker
	classifier scan.Classifier
	throttle   worker.Throttle
	cfg        Config
	logger     *zap.Logger
}

// New creates a Dispatcher.
func New(
	w *walker.Walker,
	classifier scan.Classifier,
	throttle worker.Throttle,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = cfg.Threads * 4
	}
	return &Dispatcher{
		walker:     w,
		classifier: classifier,
		throttle:   throttle,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run walks the root and classifies every file, sending events to sink. It
// blocks until the producer and all workers have exited. Canceling ctx is a
// cooperative stop and returns nil; a walker failure is returned after the
// workers finish their in-flight files.
func (d *Dispatcher) Run(ctx context.Context, sink worker.Sink) error {
	files := memory.NewQueue[scan.FileRef](d.cfg.QueueDepth)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer files.Close()
		return d.produce(gctx, files, sink)
	})
	for i := range d.cfg.Threads {
		wk := worker.New(files, sink, d.classifier, d.throttle, worker.Config{
			ID:     i + 1,
			Volume: d.cfg.Root,
		}, d.logger)
		g.Go(func() error {
			return wk.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	return nil
}

func (d *Dispatcher) produce(ctx context.Context, files *memory.Queue[scan.FileRef], sink worker.Sink) error {
	obs := &eventObserver{ctx: context.WithoutCancel(ctx), sink: sink}
	for ref, err := range d.walker.Walk(ctx, d.cfg.Root, obs) {
		if err != nil {
			return err
		}
		if err := files.Enqueue(ctx, ref); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return obs.err
}

// eventObserver forwards traversal bookkeeping to the event sink.
type eventObserver struct {
	ctx  context.Context
	sink worker.Sink
	err  error
}

func (o *eventObserver) DirectoryVisited(path string, depth int) {
	o.emit(scan.Event{Kind: scan.EventDirectory, Path: path, Depth: depth})
}

func (o *eventObserver) EntrySkipped(path string, err error) {
	o.emit(scan.Event{Kind: scan.EventSkipped, Path: path, Err: err})
}

func (o *eventObserver) emit(ev scan.Event) {
	if o.err != nil {
		return
	}
	o.err = o.sink.Enqueue(o.ctx, ev)
}
