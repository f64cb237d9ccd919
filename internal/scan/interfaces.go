package scan

import (
	"context"
	"io"
	"time"
)

// HistoryStore persists finalized scan records. Append is the only mutation.
type HistoryStore interface {
	Append(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Summary, error)
	Summary(ctx context.Context, id string) (Summary, error)
	Close() error
}

// Classifier turns a discovered file into zero or more detections.
type Classifier interface {
	Classify(ctx context.Context, ref FileRef) []DetectionResult
}

// Reporter renders a finalized record and returns the artifact location.
type Reporter interface {
	Produce(ctx context.Context, rec Record, format string) (string, error)
}

// BlobStore writes report artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes finalized-scan notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests of sampled content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan IDs.
type IDGenerator interface {
	NewID() (string, error)
}
