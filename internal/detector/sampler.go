package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrReadTimeout is returned when a sample read exceeds its deadline.
var ErrReadTimeout = errors.New("sample read timed out")

// Sampler reads a bounded prefix of a file. Reads never write to the file and
// never block longer than the configured timeout.
type Sampler struct {
	maxBytes int
	timeout  time.Duration
}

// NewSampler builds a Sampler reading at most maxBytes within timeout.
func NewSampler(maxBytes int, timeout time.Duration) *Sampler {
	if maxBytes <= 0 {
		maxBytes = 4096
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Sampler{maxBytes: maxBytes, timeout: timeout}
}

type readResult struct {
	sample Sample
	err    error
}

// Read returns the first bytes of path. A read that outlives the timeout is
// abandoned and reported as ErrReadTimeout; its goroutine finishes on its own.
func (s *Sampler) Read(ctx context.Context, path string) (Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan readResult, 1)
	go func() {
		sample, err := s.read(path)
		done <- readResult{sample: sample, err: err}
	}()

	select {
	case res := <-done:
		return res.sample, res.err
	case <-ctx.Done():
		return Sample{}, fmt.Errorf("%s: %w", path, ErrReadTimeout)
	}
}

func (s *Sampler) read(path string) (Sample, error) {
	f, err := openReadOnly(path)
	if err != nil {
		return Sample{}, fmt.Errorf("open sample: %w", err)
	}
	defer func() { _ = f.Close() }()

	// One extra byte tells a complete file from a truncated prefix.
	buf := make([]byte, s.maxBytes+1)
	n, err := io.ReadFull(f, buf)
	switch {
	case err == nil:
		return Sample{Data: buf[:s.maxBytes]}, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Sample{Data: buf[:n], Complete: true}, nil
	default:
		return Sample{}, fmt.Errorf("read sample: %w", err)
	}
}
