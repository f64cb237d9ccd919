// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/api"
	"github.com/JakeFAU/sawdisk/internal/clock/system"
	"github.com/JakeFAU/sawdisk/internal/config"
	"github.com/JakeFAU/sawdisk/internal/detector"
	"github.com/JakeFAU/sawdisk/internal/hash/sha256"
	memoryhistory "github.com/JakeFAU/sawdisk/internal/history/memory"
	"github.com/JakeFAU/sawdisk/internal/history/postgres"
	"github.com/JakeFAU/sawdisk/internal/history/sqlite"
	"github.com/JakeFAU/sawdisk/internal/id/uuid"
	"github.com/JakeFAU/sawdisk/internal/logging"
	"github.com/JakeFAU/sawdisk/internal/manager"
	"github.com/JakeFAU/sawdisk/internal/metrics"
	"github.com/JakeFAU/sawdisk/internal/mounts"
	"github.com/JakeFAU/sawdisk/internal/progress"
	progresssinks "github.com/JakeFAU/sawdisk/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/sawdisk/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/sawdisk/internal/publisher/pubsub"
	"github.com/JakeFAU/sawdisk/internal/report"
	"github.com/JakeFAU/sawdisk/internal/scan"
	gcsstorage "github.com/JakeFAU/sawdisk/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sawdisk/internal/storage/local"
	memorystorage "github.com/JakeFAU/sawdisk/internal/storage/memory"
	"github.com/JakeFAU/sawdisk/internal/throttle"
)

// App contains the application's dependencies.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	logCloser   io.Closer
	history     scan.HistoryStore
	blobCloser  io.Closer
	publisher   publisherCloser
	progressHub *progress.Hub
	manager     *manager.Manager
	mounts      *mounts.Lister
	apiServer   *api.Server

	closeOnce sync.Once
	closeErr  error
}

type publisherCloser interface {
	scan.Publisher
	Close() error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Option customizes Build.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
}

// WithLogger replaces the logger built from cfg.Logging.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers scan metrics somewhere other than the default
// Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// Build creates the application's dependencies. On error everything already
// opened is closed.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{cfg: cfg, logger: o.logger}
	if app.logger == nil {
		app.logger, app.logCloser, err = logging.New(logging.Config{
			Development:    cfg.Logging.Development,
			Level:          cfg.Logging.Level,
			File:           cfg.Logging.File,
			FileMaxSizeMB:  cfg.Logging.FileMaxSizeMB,
			FileMaxBackups: cfg.Logging.FileMaxBackups,
			FileMaxAgeDays: cfg.Logging.FileMaxAgeDays,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(app.logger)
	}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	metrics.Init()
	app.logger.Info("building application dependencies",
		zap.String("history", cfg.History.Driver),
		zap.String("reports", cfg.Reports.Provider),
		zap.String("notify", cfg.Notify.Provider),
	)

	if err = app.setupHistory(ctx); err != nil {
		return nil, err
	}
	reporter, err := app.setupReports(ctx)
	if err != nil {
		return nil, err
	}
	if err = app.setupPublisher(ctx); err != nil {
		return nil, err
	}
	if err = app.setupProgress(o.registerer); err != nil {
		return nil, err
	}

	clock := system.New()
	classifier := detector.New(detector.Config{
		SampleBytes:     cfg.Scan.SampleBytes,
		ReadTimeout:     cfg.Scan.ReadTimeout,
		MaxFileSize:     cfg.Scan.MaxFileSize,
		ExtraExtensions: cfg.Detector.ExtraExtensions,
		DisableContent:  cfg.Detector.DisableContent,
	}, sha256.New(), clock, app.logger.Named("detector"))

	deps := manager.Deps{
		Classifier: classifier,
		History:    app.history,
		Progress:   app.progressHub,
		IDs:        uuid.NewUUIDGenerator(),
		Clock:      clock,
		Logger:     app.logger,
	}
	if reporter != nil {
		deps.Reporter = reporter
	}
	if app.publisher != nil {
		deps.Publisher = app.publisher
	}
	if cfg.Scan.FilesPerSecond > 0 {
		deps.Throttle = throttle.New(throttle.Config{
			FilesPerSecond: cfg.Scan.FilesPerSecond,
			Burst:          cfg.Scan.ThrottleBurst,
		}, metrics.ObserveThrottleDelay)
		app.logger.Info("read throttle enabled", zap.Float64("files_per_second", cfg.Scan.FilesPerSecond))
	}
	app.manager = manager.New(manager.Config{
		DefaultThreads:      cfg.Scan.DefaultThreads,
		MaxThreads:          cfg.Scan.MaxThreads,
		QueueDepth:          cfg.Scan.QueueDepth,
		EventQueueDepth:     cfg.Scan.ResultQueueDepth,
		SkipDirs:            cfg.Scan.SkipDirs,
		DefaultReportFormat: cfg.ReportFormat(),
		NotifyTopic:         app.notifyTopic(),
		TopFindings:         cfg.Scan.TopFindings,
		FinalizeTimeout:     cfg.Scan.FinalizeTimeout,
	}, deps)

	app.mounts = mounts.New(mounts.Config{
		Limit:       cfg.Mounts.Limit,
		CacheTTL:    cfg.Mounts.CacheTTL,
		IncludeRoot: cfg.Mounts.IncludeRoot,
	}, app.logger.Named("mounts"))

	app.apiServer = api.NewServer(app.manager, app.mounts, app.ready, cfg, app.logger)
	return app, nil
}

func (a *App) setupHistory(ctx context.Context) error {
	var (
		store scan.HistoryStore
		err   error
	)
	switch a.cfg.History.Driver {
	case config.HistoryPostgres:
		a.logger.Info("using postgres history store")
		store, err = postgres.NewStore(ctx, postgres.Config{
			DSN:         a.cfg.History.PostgresDSN,
			MaxConns:    a.cfg.History.PostgresMaxConns,
			TopFindings: a.cfg.Scan.TopFindings,
		})
	case config.HistoryMemory:
		a.logger.Warn("using in-memory history store, scans are lost on exit")
		store = memoryhistory.NewStore(a.cfg.Scan.TopFindings)
	default:
		a.logger.Info("using sqlite history store", zap.String("path", a.cfg.History.SQLitePath))
		store, err = sqlite.Open(ctx, sqlite.Config{
			Path:        a.cfg.History.SQLitePath,
			TopFindings: a.cfg.Scan.TopFindings,
		}, a.logger.Named("history"))
	}
	if err != nil {
		return fmt.Errorf("history store init failed: %w", err)
	}
	a.history = instrumentHistory(store)
	return nil
}

func (a *App) setupReports(ctx context.Context) (scan.Reporter, error) {
	var blobStore scan.BlobStore
	switch a.cfg.Reports.Provider {
	case config.ReportsNone:
		a.logger.Info("report production disabled")
		return nil, nil
	case config.ReportsGCS:
		a.logger.Info("using GCS report storage", zap.String("bucket", a.cfg.Reports.GCSBucket))
		gcs, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Reports.GCSBucket}, a.logger.Named("gcs"))
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.blobCloser = gcs
		blobStore = gcs
	case config.ReportsMemory:
		a.logger.Warn("using in-memory report storage, reports are lost on exit")
		blobStore = memorystorage.NewBlobStore()
	default:
		local, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Reports.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local report storage", zap.String("path", local.Root()))
		blobStore = local
	}
	if _, err := report.NormalizeFormat(a.cfg.Reports.Format); err != nil {
		return nil, fmt.Errorf("reports.format: %w", err)
	}
	reporter, err := report.New(blobStore, report.Config{Prefix: a.cfg.Reports.Prefix}, system.New(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("reporter init failed: %w", err)
	}
	return instrumentReporter(reporter), nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	switch a.cfg.Notify.Provider {
	case config.NotifyPubSub:
		pub, err := gcppublisher.New(ctx, gcppublisher.Config{ProjectID: a.cfg.Notify.ProjectID}, a.logger)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.publisher = pub
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Notify.ProjectID),
			zap.String("topic", a.cfg.Notify.Topic),
		)
	case config.NotifyMemory:
		a.logger.Info("using in-memory publisher")
		a.publisher = memorypublisher.New()
	default:
		a.logger.Info("scan notifications disabled")
	}
	return nil
}

func (a *App) notifyTopic() string {
	if a.publisher == nil {
		return ""
	}
	return a.cfg.Notify.Topic
}

func (a *App) setupProgress(reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.BatchEvents,
		FlushInterval:  a.cfg.Progress.FlushInterval,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg,
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	)
	a.logger.Debug("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("flush_interval", hubCfg.FlushInterval),
	)
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if p, ok := a.history.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("history not ready: %w", err)
		}
	}
	return nil
}

// Config returns the configuration the application was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// History returns the instrumented history store.
func (a *App) History() scan.HistoryStore {
	return a.history
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Manager returns the scan manager.
func (a *App) Manager() *manager.Manager {
	return a.manager
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Serve runs the HTTP API until ctx is canceled or SIGINT/SIGTERM arrives. A
// running scan is stopped and finalized before the stores close.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Scan.FinalizeTimeout+10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.StopAndWait(shutdownCtx)
	return errors.Join(serveErr, a.Close(shutdownCtx))
}

// StopAndWait stops any running scan and waits for it to be finalized.
func (a *App) StopAndWait(ctx context.Context) {
	if ack := a.manager.Stop(); ack.Acknowledged {
		a.logger.Info("stopping running scan", zap.String("scan_id", ack.ScanID))
	}
	if err := a.manager.Wait(ctx); err != nil {
		a.logger.Warn("scan did not finalize before shutdown", zap.Error(err))
	}
}

// Close gracefully shuts down the application. Later calls return the first
// call's result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() { a.closeErr = a.close(ctx) })
	return a.closeErr
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.blobCloser != nil {
		if err := a.blobCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close blob store: %w", err))
		}
	}
	if a.logger != nil {
		a.logger.Info("shutdown complete")
		_ = a.logger.Sync()
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
