package driven

import (
	"context"
	"time"
)

// ObjectStore holds audio, transcripts, segment texts and summaries.
// Writes to an existing key overwrite it.
type ObjectStore interface {
	// Put writes data under key.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get reads the object at key.
	// Returns domain.ErrNotFound if no object exists.
	Get(ctx context.Context, key string) ([]byte, error)

	// PresignedGetURL returns a URL an external worker can fetch the object from
	// until ttl elapses.
	PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
