// Package pulse provides a driven.WorkQueue backed by Pulse streams on Redis.
//
// Jobs are published as JSON events on a single stream. Consumers share one
// Pulse sink (consumer group), so each job is delivered to one worker
// process. Events are acknowledged after the handler returns, whatever its
// result; a crash before the ack leads to redelivery.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"github.com/custodia-labs/stitch/internal/core/ports/driven"
	"github.com/custodia-labs/stitch/internal/logger"
)

// EventChunkJob is the Pulse event name of an enqueued chunk.
const EventChunkJob = "chunk.submit"

type (
	// Options configures the queue.
	Options struct {
		// Redis backs the stream. Required.
		Redis *redis.Client
		// Stream is the stream name. Required.
		Stream string
		// Sink is the consumer group shared by all workers. Required.
		Sink string
		// MaxLen bounds the number of entries kept in the stream. Zero uses Pulse defaults.
		MaxLen int
		// OperationTimeout bounds individual Add calls. Zero means no timeout.
		OperationTimeout time.Duration
	}

	// Stream is the subset of a Pulse stream used by the queue.
	Stream interface {
		Add(ctx context.Context, event string, payload []byte) (string, error)
		NewSink(ctx context.Context, name string, opts ...streamopts.Sink) (Sink, error)
	}

	// Sink is the subset of a Pulse sink used by the queue.
	Sink interface {
		Subscribe() <-chan *streaming.Event
		Ack(ctx context.Context, ev *streaming.Event) error
		Close(ctx context.Context)
	}
)

// Ensure Queue implements the interface.
var _ driven.WorkQueue = (*Queue)(nil)

// Queue publishes and consumes chunk jobs through Pulse.
type Queue struct {
	stream  Stream
	sink    string
	timeout time.Duration
	closer  func() error
}

// New opens the stream on the given Redis connection. The caller keeps
// ownership of the connection.
func New(opts Options) (*Queue, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Stream == "" || opts.Sink == "" {
		return nil, errors.New("stream and sink names are required")
	}
	var streamOptions []streamopts.Stream
	if opts.MaxLen > 0 {
		streamOptions = append(streamOptions, streamopts.WithStreamMaxLen(opts.MaxLen))
	}
	str, err := streaming.NewStream(opts.Stream, opts.Redis, streamOptions...)
	if err != nil {
		return nil, fmt.Errorf("create pulse stream: %w", err)
	}
	q := NewWithStream(&handle{stream: str}, opts.Sink)
	q.timeout = opts.OperationTimeout
	return q, nil
}

// Dial connects to Redis at addr and opens the stream. Close releases the
// connection.
func Dial(ctx context.Context, addr string, opts Options) (*Queue, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	opts.Redis = rdb
	q, err := New(opts)
	if err != nil {
		rdb.Close()
		return nil, err
	}
	q.closer = rdb.Close
	return q, nil
}

// NewWithStream creates a queue over an existing stream handle.
func NewWithStream(stream Stream, sink string) *Queue {
	return &Queue{stream: stream, sink: sink}
}

// Enqueue publishes job as a JSON event.
func (q *Queue) Enqueue(ctx context.Context, job driven.ChunkJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	if _, err := q.stream.Add(ctx, EventChunkJob, payload); err != nil {
		return fmt.Errorf("pulse add: %w", err)
	}
	return nil
}

// Consume reads jobs from the shared sink until ctx is cancelled or the
// subscription closes. Malformed events are acknowledged and skipped.
func (q *Queue) Consume(ctx context.Context, handler driven.JobHandler) error {
	sink, err := q.stream.NewSink(ctx, q.sink, streamopts.WithSinkStartAtOldest())
	if err != nil {
		return fmt.Errorf("create sink %q: %w", q.sink, err)
	}
	defer sink.Close(context.Background())

	events := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			q.handle(ctx, ev, handler)
			if err := sink.Ack(ctx, ev); err != nil {
				return fmt.Errorf("pulse ack %s: %w", ev.ID, err)
			}
		}
	}
}

func (q *Queue) handle(ctx context.Context, ev *streaming.Event, handler driven.JobHandler) {
	if ev.EventName != EventChunkJob {
		logger.Debug("pulse: skipping event %s (%s)", ev.ID, ev.EventName)
		return
	}
	var job driven.ChunkJob
	if err := json.Unmarshal(ev.Payload, &job); err != nil {
		logger.Warn("pulse: malformed job %s: %v", ev.ID, err)
		return
	}
	if err := handler(ctx, job); err != nil {
		logger.With("session", job.SessionID, "seq", job.Seq).Warn("job %s failed, acknowledged: %v", ev.ID, err)
	}
}

// Close releases the Redis connection when the queue owns it.
func (q *Queue) Close() error {
	if q.closer == nil {
		return nil
	}
	return q.closer()
}

// handle adapts *streaming.Stream to Stream.
type handle struct {
	stream *streaming.Stream
}

func (h *handle) Add(ctx context.Context, event string, payload []byte) (string, error) {
	return h.stream.Add(ctx, event, payload)
}

func (h *handle) NewSink(ctx context.Context, name string, opts ...streamopts.Sink) (Sink, error) {
	sink, err := h.stream.NewSink(ctx, name, opts...)
	if err != nil {
		return nil, err
	}
	return sinkAdapter{Sink: sink}, nil
}

// sinkAdapter makes Close match the Sink interface.
type sinkAdapter struct {
	*streaming.Sink
}

func (s sinkAdapter) Close(ctx context.Context) {
	s.Sink.Close(ctx)
}
