package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/id/uuid"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

const (
	defaultScanLimit = 50
	maxScanLimit     = 500
)

// listScans handles GET /v1/scans?status=&limit=&offset=. It returns
// {"scans": [...]} most recent first, 400 for invalid filters, or 500 when the
// history store fails and nothing is held in memory.
func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultScanLimit, maxScanLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status scan.Status
	if statusParam := strings.TrimSpace(r.URL.Query().Get("status")); statusParam != "" {
		if status, err = parseStatus(statusParam); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	list, err := s.scanner.List(r.Context())
	payload := map[string]any{}
	if err != nil {
		s.logger.Error("list scans failed", zap.Error(err))
		if len(list) == 0 {
			writeError(w, http.StatusInternalServerError, "failed to list scans")
			return
		}
		// The unpersisted last scan is still served.
		payload["warning"] = "history unavailable"
	}
	payload["scans"] = page(filterStatus(list, status), limit, offset)
	writeJSON(w, http.StatusOK, payload)
}

// getScan handles GET /v1/scans/{scan_id}. It returns the full record, 400 for
// malformed IDs, or 404 when the scan is unknown.
func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	scanID, err := parseScanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.scanner.Record(r.Context(), scanID)
	if err != nil {
		s.writeLookupError(w, err, "failed to load scan")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// getSummary handles GET /v1/scans/{scan_id}/summary.
func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	scanID, err := parseScanID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.scanner.Summary(r.Context(), scanID)
	if err != nil {
		s.writeLookupError(w, err, "failed to load scan summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, scan.ErrNotFound) {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	s.logger.Error(msg, zap.Error(err), zap.Bool("history_error", scan.IsHistoryError(err)))
	writeError(w, http.StatusInternalServerError, msg)
}

func parseScanID(r *http.Request) (string, error) {
	scanID := chi.URLParam(r, "scan_id")
	if scanID == "" {
		return "", errors.New("scan_id is required")
	}
	if !uuid.Valid(scanID) {
		return "", errors.New("invalid scan_id")
	}
	return scanID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (scan.Status, error) {
	switch status := scan.Status(strings.ToLower(input)); status {
	case scan.StatusCompleted, scan.StatusFailed, scan.StatusStopped:
		return status, nil
	default:
		return "", errors.New("invalid status")
	}
}

func filterStatus(in []scan.Summary, status scan.Status) []scan.Summary {
	if status == "" {
		return in
	}
	out := make([]scan.Summary, 0, len(in))
	for _, sum := range in {
		if sum.Status == status {
			out = append(out, sum)
		}
	}
	return out
}

func page(in []scan.Summary, limit, offset int) []scan.Summary {
	if offset >= len(in) {
		return []scan.Summary{}
	}
	in = in[offset:]
	if len(in) > limit {
		in = in[:limit]
	}
	return in
}
