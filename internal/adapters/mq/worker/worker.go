// Package worker delivers queued media chunks to the server one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/intervue/internal/adapters/mq/queue"
	"github.com/okian/intervue/pkg/logger"
	"github.com/okian/intervue/pkg/metrics"
)

// Default delivery policy.
const (
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMultiplier  = 1.8
	defaultMaxAttempts = 5
)

// ErrChunkLost is returned for a chunk whose every delivery attempt failed.
var ErrChunkLost = errors.New("chunk lost")

// Chunk abstracts what the worker reads off the queue.
type Chunk = queue.Chunk

// Deliverer sends one chunk to the upload endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, c Chunk) error
}

// Queue defines how the worker receives chunks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Chunk
}

// Backoff is the retry schedule of a single chunk.
type Backoff struct {
	Base        time.Duration
	Multiplier  float64
	MaxAttempts int
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1)))
}

// InMemoryWorker drains a queue in order. The next chunk is taken only after
// the current one was delivered or given up on.
type InMemoryWorker struct {
	queue     Queue
	deliverer Deliverer
	name      string
	backoff   Backoff
	sleep     func(time.Duration)
	onDone    func(Chunk, error)

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, deliverer Deliverer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		deliverer: deliverer,
		name:      "upload-worker",
		backoff: Backoff{
			Base:        defaultBaseDelay,
			Multiplier:  defaultMultiplier,
			MaxAttempts: defaultMaxAttempts,
		},
		sleep:    time.Sleep,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "upload-worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run consumes chunks until the queue is closed and empty, ctx is canceled
// or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	chunks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-chunks:
			if !ok {
				return
			}
			err := w.process(ctx, c)
			if w.onDone != nil {
				w.onDone(c, err)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// Shutdown stops the worker after the chunk in flight, if any.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process delivers one chunk with retries. Delivery runs on a context
// detached from ctx so ending a session never aborts an upload in flight.
func (w *InMemoryWorker) process(ctx context.Context, c Chunk) error { //nolint:gocritic // hugeParam: chunks are passed by value through the channel
	dctx := context.WithoutCancel(ctx)
	start := time.Now()

	var err error
	for attempt := 1; attempt <= w.backoff.MaxAttempts; attempt++ {
		err = w.deliverer.Deliver(dctx, c)
		if err == nil {
			metrics.RecordUploadDelivered(float64(time.Since(start).Milliseconds()))
			w.logger.Debug(dctx, "chunk delivered",
				logger.String("attempt_id", c.AttemptID),
				logger.Int64("sequence", c.Sequence),
				logger.Int("tries", attempt),
			)
			return nil
		}
		if attempt == w.backoff.MaxAttempts {
			break
		}
		delay := w.backoff.Delay(attempt)
		metrics.RecordUploadRetry()
		w.logger.Warn(dctx, "chunk delivery failed, retrying",
			logger.String("attempt_id", c.AttemptID),
			logger.Int64("sequence", c.Sequence),
			logger.Int("try", attempt),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
		w.sleep(delay)
	}

	metrics.RecordUploadLost()
	metrics.RecordErrorByComponent("worker", "chunk_lost")
	w.logger.Error(dctx, "chunk lost after retries",
		logger.String("attempt_id", c.AttemptID),
		logger.Int64("sequence", c.Sequence),
		logger.Int("tries", w.backoff.MaxAttempts),
		logger.Error(err),
	)
	return fmt.Errorf("%w: attempt %s sequence %d: %w", ErrChunkLost, c.AttemptID, c.Sequence, err)
}
