// Package sinks contains progress.Sink implementations for structured logs and
// Prometheus metrics.
package sinks
