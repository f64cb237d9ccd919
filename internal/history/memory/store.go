// Package memory provides a non-durable history store for tests and one-off
// CLI scans.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

// Store keeps finalized records in append order.
type Store struct {
	mu      sync.RWMutex
	order   []string
	records map[string]scan.Record
	top     int
	closed  bool
}

// NewStore constructs a Store keeping top findings per summary.
func NewStore(top int) *Store {
	if top < 1 {
		top = 5
	}
	return &Store{records: make(map[string]scan.Record), top: top}
}

// Append stores a finalized record once.
func (s *Store) Append(_ context.Context, rec scan.Record) error {
	if !rec.Status.IsTerminal() {
		return fmt.Errorf("append scan %s: status %q is not final", rec.ID, rec.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("append scan %s: store closed", rec.ID)
	}
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("append scan %s: %w", rec.ID, scan.ErrAlreadyRecorded)
	}
	s.records[rec.ID] = rec.Clone()
	s.order = append(s.order, rec.ID)
	return nil
}

// Get fetches a record by ID.
func (s *Store) Get(_ context.Context, id string) (scan.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return scan.Record{}, fmt.Errorf("get scan %s: %w", id, scan.ErrNotFound)
	}
	return rec.Clone(), nil
}

// List returns summaries most-recent-first.
func (s *Store) List(_ context.Context) ([]scan.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scan.Summary, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.records[s.order[i]].Summarize(s.top))
	}
	return out, nil
}

// Summary returns the summary for id.
func (s *Store) Summary(_ context.Context, id string) (scan.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return scan.Summary{}, fmt.Errorf("summary scan %s: %w", id, scan.ErrNotFound)
	}
	return rec.Summarize(s.top), nil
}

// Close marks the store closed for further appends.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
