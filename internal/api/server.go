// Package api exposes the HTTP interface for the scan service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/config"
	"github.com/JakeFAU/sawdisk/internal/metrics"
	"github.com/JakeFAU/sawdisk/internal/mounts"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

// Scanner is the slice of the scan manager the API drives.
type Scanner interface {
	Start(ctx context.Context, req scan.Request) (string, error)
	Stop() scan.StopAck
	Status() scan.Snapshot
	List(ctx context.Context) ([]scan.Summary, error)
	Record(ctx context.Context, id string) (scan.Record, error)
	Summary(ctx context.Context, id string) (scan.Summary, error)
}

// MountLister enumerates candidate volumes.
type MountLister interface {
	List() ([]mounts.Mount, error)
}

// ReadyCheck reports whether downstream dependencies are usable.
type ReadyCheck func(ctx context.Context) error

// Server wires HTTP handlers to the scan manager.
type Server struct {
	router   chi.Router
	scanner  Scanner
	mounts   MountLister
	ready    ReadyCheck
	upgrader websocket.Upgrader
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. mounts and ready
// may be nil.
func NewServer(scanner Scanner, mountLister MountLister, ready ReadyCheck, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.StreamInterval <= 0 {
		cfg.Server.StreamInterval = 500 * time.Millisecond
	}
	s := &Server{
		scanner: scanner,
		mounts:  mountLister,
		ready:   ready,
		cfg:     cfg,
		logger:  logger.Named("api"),
		upgrader: websocket.Upgrader{
			// The API key gate applies before the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	metrics.Init()
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Streams outlive any request timeout.
		r.Get("/scans/stream", s.streamStatus)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.Server.RequestTimeout))
			r.Get("/mounts", s.listMounts)
			r.Post("/scans", s.startScan)
			r.Post("/scans/stop", s.stopScan)
			r.Get("/scans/status", s.scanStatus)
			r.Get("/scans", s.listScans)
			r.Get("/scans/{scan_id}", s.getScan)
			r.Get("/scans/{scan_id}/summary", s.getSummary)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	scanID, err := s.scanner.Start(r.Context(), s.toRequest(req))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"scan_id": scanID})
	case errors.Is(err, scan.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scan.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("start scan failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start scan")
	}
}

func (s *Server) stopScan(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scanner.Stop())
}

func (s *Server) scanStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toStatusDTO(s.scanner.Status()))
}

func (s *Server) listMounts(w http.ResponseWriter, _ *http.Request) {
	if s.mounts == nil {
		writeError(w, http.StatusServiceUnavailable, "mount listing unavailable")
		return
	}
	list, err := s.mounts.List()
	if err != nil {
		if errors.Is(err, mounts.ErrUnsupported) {
			writeError(w, http.StatusNotImplemented, err.Error())
			return
		}
		s.logger.Error("list mounts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list mounts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mounts": list})
}

func (s *Server) toRequest(req startScanRequest) scan.Request {
	return scan.Request{
		Path:         req.Path,
		MaxDepth:     valueOrDefault(req.MaxDepth, s.cfg.Scan.DefaultMaxDepth),
		Threads:      valueOrDefault(req.Threads, 0),
		Verbose:      req.Verbose,
		ReportFormat: req.ReportFormat,
	}
}

type startScanRequest struct {
	Path         string `json:"path"`
	Threads      *int   `json:"threads"`
	MaxDepth     *int   `json:"max_depth"`
	Verbose      bool   `json:"verbose"`
	ReportFormat string `json:"report_format"`
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

type statusDTO struct {
	Status        scan.Status            `json:"status"`
	IsRunning     bool                   `json:"is_running"`
	StopRequested bool                   `json:"stop_requested"`
	ScanID        string                 `json:"scan_id,omitempty"`
	RootPath      string                 `json:"root_path,omitempty"`
	StartedAt     *time.Time             `json:"started_at,omitempty"`
	EndedAt       *time.Time             `json:"ended_at,omitempty"`
	Counters      scan.Counters          `json:"counters"`
	ResultCount   int                    `json:"result_count"`
	Results       []scan.DetectionResult `json:"results"`
	FailureReason string                 `json:"failure_reason,omitempty"`
	ReportURI     string                 `json:"report_uri,omitempty"`
}

func toStatusDTO(snap scan.Snapshot) statusDTO {
	dto := statusDTO{
		Status:        snap.Status,
		IsRunning:     snap.IsRunning,
		StopRequested: snap.StopRequested,
		ResultCount:   snap.ResultCount,
		Results:       []scan.DetectionResult{},
	}
	if rec := snap.Record; rec != nil {
		started := rec.StartedAt
		dto.ScanID = rec.ID
		dto.RootPath = rec.Request.Path
		dto.StartedAt = &started
		dto.EndedAt = rec.EndedAt
		dto.Counters = rec.Counters
		dto.FailureReason = rec.FailureReason
		dto.ReportURI = rec.ReportURI
		if rec.Results != nil {
			dto.Results = rec.Results
		}
	}
	return dto
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", reqID),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		rw.status = http.StatusSwitchingProtocols
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
