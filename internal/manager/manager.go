// Package manager owns the single scan slot: it accepts at most one scan at a
// time, drives the worker pool, applies pool events to the live record and
// finalizes the record into history.
package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/dispatcher"
	"github.com/JakeFAU/sawdisk/internal/progress"
	"github.com/JakeFAU/sawdisk/internal/queue/memory"
	"github.com/JakeFAU/sawdisk/internal/scan"
	"github.com/JakeFAU/sawdisk/internal/walker"
	"github.com/JakeFAU/sawdisk/internal/worker"
)

// Config holds scan defaults and limits.
type Config struct {
	DefaultThreads  int
	MaxThreads      int
	QueueDepth      int
	EventQueueDepth int
	SkipDirs        []string
	// DefaultReportFormat applies when a request names none. Empty or "none"
	// disables reporting.
	DefaultReportFormat string
	NotifyTopic         string
	TopFindings         int
	// FinalizeTimeout bounds report, history and notification I/O.
	FinalizeTimeout time.Duration
}

// Deps bundles the manager's collaborators. Reporter, Publisher, Throttle and
// Progress are optional.
type Deps struct {
	Classifier scan.Classifier
	History    scan.HistoryStore
	Reporter   scan.Reporter
	Publisher  scan.Publisher
	Throttle   worker.Throttle
	Progress   progress.Emitter
	IDs        scan.IDGenerator
	Clock      scan.Clock
	Logger     *zap.Logger
}

// Notification is published once per finalized scan.
type Notification struct {
	ScanID        string      `json:"scan_id"`
	RootPath      string      `json:"root_path"`
	Status        scan.Status `json:"status"`
	FilesExamined int64       `json:"files_examined"`
	ResultCount   int         `json:"result_count"`
	ReportURI     string      `json:"report_uri,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
	EndedAt       time.Time   `json:"ended_at"`
}

// Attributes exposes filterable message attributes.
func (n Notification) Attributes() map[string]string {
	return map[string]string{"scan_id": n.ScanID, "status": string(n.Status)}
}

type run struct {
	record        scan.Record
	stopRequested bool
	cancel        context.CancelFunc
	done          chan struct{}
}

// Manager is the scan state machine. All record mutation happens under mu on
// the coordinator goroutine; workers only emit events.
type Manager struct {
	cfg  Config
	deps Deps

	mu     sync.Mutex
	active *run
	last   *scan.Record
	// lastPersisted is false when the last record could not be appended to history.
	lastPersisted bool
}

// New constructs a Manager.
func New(cfg Config, deps Deps) *Manager {
	if cfg.DefaultThreads < 1 {
		cfg.DefaultThreads = 4
	}
	if cfg.MaxThreads < 1 {
		cfg.MaxThreads = 32
	}
	if cfg.DefaultThreads > cfg.MaxThreads {
		cfg.DefaultThreads = cfg.MaxThreads
	}
	if cfg.EventQueueDepth < 1 {
		cfg.EventQueueDepth = 256
	}
	if cfg.TopFindings < 1 {
		cfg.TopFindings = 5
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 30 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop{}
	}
	deps.Logger = deps.Logger.Named("manager")
	return &Manager{cfg: cfg, deps: deps}
}

// Normalize validates req and fills defaults. It never touches manager state.
func (m *Manager) Normalize(req scan.Request) (scan.Request, error) {
	path := strings.TrimSpace(req.Path)
	if path == "" {
		return scan.Request{}, fmt.Errorf("%w: path is required", scan.ErrInvalidRequest)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return scan.Request{}, fmt.Errorf("%w: resolve path: %v", scan.ErrInvalidRequest, err)
	}
	req.Path = abs
	if req.MaxDepth < scan.Unbounded {
		return scan.Request{}, fmt.Errorf("%w: max depth must be >= 0", scan.ErrInvalidRequest)
	}
	switch {
	case req.Threads <= 0:
		req.Threads = m.cfg.DefaultThreads
	case req.Threads > m.cfg.MaxThreads:
		req.Threads = m.cfg.MaxThreads
	}
	if req.ReportFormat == "" {
		req.ReportFormat = m.cfg.DefaultReportFormat
	}
	req.ReportFormat = strings.ToLower(req.ReportFormat)
	return req, nil
}

// Start accepts req and returns the new scan ID, or scan.ErrAlreadyRunning
// when a scan occupies the slot. Rejected requests change no state.
func (m *Manager) Start(ctx context.Context, req scan.Request) (string, error) {
	req, err := m.Normalize(req)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return "", scan.ErrAlreadyRunning
	}
	id, err := m.deps.IDs.NewID()
	if err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("allocate scan id: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		record: scan.Record{
			ID:        id,
			Request:   req,
			Status:    scan.StatusRunning,
			StartedAt: m.deps.Clock.Now(),
			Results:   []scan.DetectionResult{},
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.active = r
	m.mu.Unlock()

	m.deps.Logger.Info("scan accepted",
		zap.String("scan_id", id),
		zap.String("path", req.Path),
		zap.Int("threads", req.Threads),
		zap.Int("max_depth", req.MaxDepth),
	)
	m.deps.Progress.Emit(progress.Event{
		ScanID: id,
		TS:     r.record.StartedAt,
		Stage:  progress.StageScanStart,
		Path:   req.Path,
	})
	go m.coordinate(runCtx, r)
	return id, nil
}

// Stop requests cooperative cancellation of the running scan. When nothing is
// running it reports a no-op acknowledgement.
func (m *Manager) Stop() scan.StopAck {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		status := scan.StatusIdle
		if m.last != nil {
			status = m.last.Status
		}
		return scan.StopAck{Status: status, Message: scan.ErrNotRunning.Error()}
	}
	r := m.active
	if r.stopRequested {
		return scan.StopAck{Acknowledged: true, ScanID: r.record.ID, Status: r.record.Status, Message: "stop already requested"}
	}
	r.stopRequested = true
	r.record.Status = scan.StatusStopping
	r.cancel()
	m.deps.Logger.Info("stop requested", zap.String("scan_id", r.record.ID))
	return scan.StopAck{Acknowledged: true, ScanID: r.record.ID, Status: scan.StatusStopping, Message: "stop requested"}
}

// Status returns a consistent copy of the running scan or, failing that, the
// last finalized scan.
func (m *Manager) Status() scan.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r := m.active; r != nil {
		rec := r.record.Clone()
		return scan.Snapshot{
			Status:        rec.Status,
			IsRunning:     true,
			StopRequested: r.stopRequested,
			ResultCount:   len(rec.Results),
			Record:        &rec,
		}
	}
	if m.last != nil {
		rec := m.last.Clone()
		return scan.Snapshot{Status: rec.Status, ResultCount: len(rec.Results), Record: &rec}
	}
	return scan.Snapshot{Status: scan.StatusIdle}
}

// Wait blocks until the running scan (if any) is finalized.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	r := m.active
	m.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scan: %w", ctx.Err())
	}
}

// coordinate runs the pool and is the only writer of r.record while running.
func (m *Manager) coordinate(ctx context.Context, r *run) {
	defer r.cancel()
	req := r.record.Request
	logger := m.deps.Logger.With(zap.String("scan_id", r.record.ID))

	var runErr error
	if err := walker.CheckRoot(req.Path); err != nil {
		runErr = err
	} else {
		events := memory.NewQueue[scan.Event](m.cfg.EventQueueDepth)
		pool := dispatcher.New(
			walker.New(walker.Options{MaxDepth: req.MaxDepth, SkipDirs: m.cfg.SkipDirs}, logger),
			m.deps.Classifier,
			m.deps.Throttle,
			dispatcher.Config{Threads: req.Threads, QueueDepth: m.cfg.QueueDepth, Root: req.Path},
			logger,
		)
		poolDone := make(chan error, 1)
		go func() {
			poolDone <- pool.Run(ctx, events)
			events.Close()
		}()
		drainCtx := context.WithoutCancel(ctx)
		for {
			ev, err := events.Dequeue(drainCtx)
			if err != nil {
				break
			}
			m.apply(r, ev)
		}
		runErr = <-poolDone
	}
	m.finalize(ctx, r, runErr, logger)
}

func (m *Manager) apply(r *run, ev scan.Event) {
	m.mu.Lock()
	c := &r.record.Counters
	switch ev.Kind {
	case scan.EventFile:
		c.FilesExamined++
		c.BytesScanned += ev.Size
		if len(ev.Results) > 0 {
			r.record.Results = append(r.record.Results, ev.Results...)
			c.Detections += int64(len(ev.Results))
		}
	case scan.EventDirectory:
		c.DirectoriesVisited++
	case scan.EventSkipped:
		c.ItemsSkipped++
	}
	if ev.Depth > c.MaxDepthReached {
		c.MaxDepthReached = ev.Depth
	}
	id := r.record.ID
	m.mu.Unlock()

	if ev.Kind != scan.EventFile {
		return
	}
	now := m.deps.Clock.Now()
	m.deps.Progress.Emit(progress.Event{ScanID: id, TS: now, Stage: progress.StageFileDone, Path: ev.Path, Bytes: ev.Size})
	for _, res := range ev.Results {
		m.deps.Progress.Emit(progress.Event{
			ScanID:     id,
			TS:         now,
			Stage:      progress.StageDetection,
			Path:       res.Path,
			WalletType: res.WalletType,
			Method:     res.Method,
			Confidence: res.Confidence,
		})
	}
}

func (m *Manager) finalize(ctx context.Context, r *run, runErr error, logger *zap.Logger) {
	// The live record keeps its running status until the slot is released, so
	// snapshots never show a terminal status with is_running set.
	m.mu.Lock()
	rec := r.record.Clone()
	stopRequested := r.stopRequested
	m.mu.Unlock()

	ended := m.deps.Clock.Now()
	rec.EndedAt = &ended
	switch {
	case runErr != nil:
		rec.Status = scan.StatusFailed
		rec.FailureReason = runErr.Error()
	case stopRequested:
		rec.Status = scan.StatusStopped
	default:
		rec.Status = scan.StatusCompleted
	}

	ioCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.FinalizeTimeout)
	defer cancel()

	if uri, err := m.produceReport(ioCtx, rec); err != nil {
		logger.Warn("report production failed", zap.Error(err))
	} else {
		rec.ReportURI = uri
	}

	persisted := true
	if err := m.deps.History.Append(ioCtx, rec); err != nil {
		persisted = false
		logger.Error("history append failed", zap.Error(err))
		rec.Status = scan.StatusFailed
		reason := scan.WrapHistory("append", err).Error()
		if rec.FailureReason != "" {
			reason = rec.FailureReason + "; " + reason
		}
		rec.FailureReason = reason
	}

	m.mu.Lock()
	r.record = rec
	m.last = &rec
	m.lastPersisted = persisted
	m.active = nil
	close(r.done)
	m.mu.Unlock()

	m.notify(ioCtx, rec, logger)

	stage := progress.StageScanDone
	if rec.Status == scan.StatusFailed {
		stage = progress.StageScanError
	}
	m.deps.Progress.Emit(progress.Event{
		ScanID: rec.ID,
		TS:     ended,
		Stage:  stage,
		Path:   rec.Request.Path,
		Status: rec.Status,
		Dur:    rec.Duration(ended),
		Note:   rec.FailureReason,
	})
	logger.Info("scan finalized",
		zap.String("status", string(rec.Status)),
		zap.Int64("files_examined", rec.Counters.FilesExamined),
		zap.Int("results", len(rec.Results)),
		zap.String("report_uri", rec.ReportURI),
	)
}

func (m *Manager) produceReport(ctx context.Context, rec scan.Record) (string, error) {
	format := rec.Request.ReportFormat
	if m.deps.Reporter == nil || format == "" || format == "none" {
		return "", nil
	}
	uri, err := m.deps.Reporter.Produce(ctx, rec, format)
	if err != nil {
		return "", fmt.Errorf("produce %s report: %w", format, err)
	}
	return uri, nil
}

func (m *Manager) notify(ctx context.Context, rec scan.Record, logger *zap.Logger) {
	if m.deps.Publisher == nil || m.cfg.NotifyTopic == "" {
		return
	}
	payload := Notification{
		ScanID:        rec.ID,
		RootPath:      rec.Request.Path,
		Status:        rec.Status,
		FilesExamined: rec.Counters.FilesExamined,
		ResultCount:   len(rec.Results),
		ReportURI:     rec.ReportURI,
		FailureReason: rec.FailureReason,
	}
	if rec.EndedAt != nil {
		payload.EndedAt = *rec.EndedAt
	}
	if _, err := m.deps.Publisher.Publish(ctx, m.cfg.NotifyTopic, payload); err != nil {
		logger.Warn("scan notification failed", zap.Error(err))
	}
}

// Record returns the full record for id. The running scan and an unpersisted
// last scan are served from memory; everything else comes from history.
func (m *Manager) Record(ctx context.Context, id string) (scan.Record, error) {
	if rec, ok := m.inMemory(id); ok {
		return rec, nil
	}
	rec, err := m.deps.History.Get(ctx, id)
	if err != nil {
		return scan.Record{}, historyErr("get", err)
	}
	return rec, nil
}

// Summary returns the summary for id.
func (m *Manager) Summary(ctx context.Context, id string) (scan.Summary, error) {
	if rec, ok := m.inMemory(id); ok {
		return rec.Summarize(m.cfg.TopFindings), nil
	}
	s, err := m.deps.History.Summary(ctx, id)
	if err != nil {
		return scan.Summary{}, historyErr("summary", err)
	}
	return s, nil
}

// List returns finalized scans most-recent-first. A last scan that failed to
// persist is listed first so it stays visible for the process lifetime.
func (m *Manager) List(ctx context.Context) ([]scan.Summary, error) {
	m.mu.Lock()
	var pending *scan.Summary
	if m.last != nil && !m.lastPersisted {
		s := m.last.Summarize(m.cfg.TopFindings)
		pending = &s
	}
	m.mu.Unlock()

	list, err := m.deps.History.List(ctx)
	if err != nil {
		if pending != nil {
			return []scan.Summary{*pending}, historyErr("list", err)
		}
		return nil, historyErr("list", err)
	}
	if pending != nil {
		list = append([]scan.Summary{*pending}, list...)
	}
	return list, nil
}

func (m *Manager) inMemory(id string) (scan.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.record.ID == id {
		return m.active.record.Clone(), true
	}
	if m.last != nil && m.last.ID == id && !m.lastPersisted {
		return m.last.Clone(), true
	}
	return scan.Record{}, false
}

func historyErr(op string, err error) error {
	if errors.Is(err, scan.ErrNotFound) {
		return err
	}
	return scan.WrapHistory(op, err)
}
