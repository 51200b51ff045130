// Package memory provides an in-process driven.WorkQueue for single-node
// deployments and tests. Jobs do not survive a restart.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/custodia-labs/stitch/internal/core/ports/driven"
	"github.com/custodia-labs/stitch/internal/logger"
)

// DefaultBuffer is the channel capacity used when none is given.
const DefaultBuffer = 256

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Ensure Queue implements the interface.
var _ driven.WorkQueue = (*Queue)(nil)

// Queue is a buffered channel of jobs.
type Queue struct {
	jobs   chan driven.ChunkJob
	closed chan struct{}
	once   sync.Once
}

// NewQueue creates a queue holding up to buffer pending jobs.
func NewQueue(buffer int) *Queue {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Queue{
		jobs:   make(chan driven.ChunkJob, buffer),
		closed: make(chan struct{}),
	}
}

// Enqueue adds a job, blocking while the buffer is full.
func (q *Queue) Enqueue(ctx context.Context, job driven.ChunkJob) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume hands jobs to handler one at a time until ctx is cancelled or the
// queue is closed. Handler errors are logged and the job is dropped.
func (q *Queue) Consume(ctx context.Context, handler driven.JobHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closed:
			return nil
		case job := <-q.jobs:
			if err := handler(ctx, job); err != nil {
				logger.With("session", job.SessionID, "seq", job.Seq).Warn("job failed, dropped: %v", err)
			}
		}
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Close stops consumers and rejects further jobs.
func (q *Queue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
