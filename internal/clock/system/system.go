// Package system provides clock implementations.
package system

import (
	"sync"
	"time"
)

// Clock implements scan.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Stepping is a deterministic clock that advances by Step on every call.
type Stepping struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepping returns a clock starting at start.
func NewStepping(start time.Time, step time.Duration) *Stepping {
	return &Stepping{now: start.UTC(), step: step}
}

// Now returns the current fake time and advances it.
func (s *Stepping) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now
	s.now = s.now.Add(s.step)
	return now
}
