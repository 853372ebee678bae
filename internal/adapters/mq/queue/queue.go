// Package queue holds media chunks waiting for upload.
//
// Chunks leave the queue in the order they were enqueued. Closing the queue
// stops new chunks from entering while the ones already queued can still be
// consumed.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/pkg/metrics"
)

const defaultQueueCapacity = 256

// Chunk is the payload flowing through the queue.
type Chunk = model.MediaChunk

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a chunk without blocking. It fails with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, c Chunk) error

	// Dequeue returns the channel chunks are read from.
	// The channel is closed once the queue is closed and empty.
	Dequeue(ctx context.Context) <-chan Chunk

	// Len returns the current number of queued chunks.
	Len(ctx context.Context) int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	chunks   chan Chunk
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.chunks = make(chan Chunk, q.capacity)
	return q
}

// Enqueue adds a chunk to the tail of the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, c Chunk) error { //nolint:gocritic // hugeParam: chunks are passed by value through the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	select {
	case q.chunks <- c:
		metrics.RecordUploadEnqueued()
		return nil
	case <-ctx.Done():
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return fmt.Errorf("enqueue chunk %d: %w", c.Sequence, ctx.Err())
	default:
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the queue's channel. Every consumer shares it.
func (q *InMemoryQueue) Dequeue(context.Context) <-chan Chunk {
	return q.chunks
}

// Len returns the current number of queued chunks.
func (q *InMemoryQueue) Len(context.Context) int {
	return len(q.chunks)
}

// Close stops accepting chunks. Already queued chunks remain readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.chunks)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
