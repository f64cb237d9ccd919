package app

import (
	"context"
	"errors"

	"github.com/JakeFAU/sawdisk/internal/metrics"
	"github.com/JakeFAU/sawdisk/internal/report"
	"github.com/JakeFAU/sawdisk/internal/scan"
)

// historyMetrics counts history failures. Misses and duplicate appends are
// answers, not failures.
type historyMetrics struct {
	scan.HistoryStore
}

func instrumentHistory(store scan.HistoryStore) scan.HistoryStore {
	return historyMetrics{HistoryStore: store}
}

func (h historyMetrics) observe(op string, err error) error {
	if err != nil && !errors.Is(err, scan.ErrNotFound) && !errors.Is(err, scan.ErrAlreadyRecorded) {
		metrics.ObserveHistoryError(op)
	}
	return err
}

func (h historyMetrics) Append(ctx context.Context, rec scan.Record) error {
	return h.observe("append", h.HistoryStore.Append(ctx, rec))
}

func (h historyMetrics) Get(ctx context.Context, id string) (scan.Record, error) {
	rec, err := h.HistoryStore.Get(ctx, id)
	return rec, h.observe("get", err)
}

func (h historyMetrics) List(ctx context.Context) ([]scan.Summary, error) {
	list, err := h.HistoryStore.List(ctx)
	return list, h.observe("list", err)
}

func (h historyMetrics) Summary(ctx context.Context, id string) (scan.Summary, error) {
	sum, err := h.HistoryStore.Summary(ctx, id)
	return sum, h.observe("summary", err)
}

// Ping forwards to the wrapped store when it supports readiness checks.
func (h historyMetrics) Ping(ctx context.Context) error {
	if p, ok := h.HistoryStore.(pinger); ok {
		return h.observe("ping", p.Ping(ctx))
	}
	return nil
}

type reporterMetrics struct {
	scan.Reporter
}

func instrumentReporter(r scan.Reporter) scan.Reporter {
	return reporterMetrics{Reporter: r}
}

func (r reporterMetrics) Produce(ctx context.Context, rec scan.Record, format string) (string, error) {
	uri, err := r.Reporter.Produce(ctx, rec, format)
	label, nerr := report.NormalizeFormat(format)
	if nerr != nil {
		label = "unsupported"
	}
	metrics.ObserveReport(label, err)
	return uri, err
}
