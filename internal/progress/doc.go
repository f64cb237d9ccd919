// Package progress carries scan lifecycle and per-file events from the scan
// manager to observability sinks. Events are batched on a background goroutine
// so emitters never block on logging or metrics.
package progress
