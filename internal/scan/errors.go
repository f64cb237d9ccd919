package scan

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers of the manager and history store.
var (
	ErrAlreadyRunning  = errors.New("scan already in progress")
	ErrNotRunning      = errors.New("no scan is currently running")
	ErrNotFound        = errors.New("scan not found")
	ErrInvalidRequest  = errors.New("invalid scan request")
	ErrAlreadyRecorded = errors.New("scan already recorded")
)

// HistoryError marks failures of the history store so callers can tell them
// apart from scan execution errors.
type HistoryError struct {
	Op  string
	Err error
}

func (e *HistoryError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *HistoryError) Unwrap() error {
	return e.Err
}

// WrapHistory wraps err as a HistoryError unless it is nil.
func WrapHistory(op string, err error) error {
	if err == nil {
		return nil
	}
	var he *HistoryError
	if errors.As(err, &he) {
		return err
	}
	return &HistoryError{Op: op, Err: err}
}

// IsHistoryError reports whether err came from the history store.
func IsHistoryError(err error) bool {
	var he *HistoryError
	return errors.As(err, &he)
}
