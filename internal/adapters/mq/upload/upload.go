// Package upload is the chunk upload queue used by the session runtime.
//
// Enqueue never blocks the caller. A single worker delivers chunks in the
// order they were enqueued, retrying each with backoff and dropping it when
// every attempt failed. Disable stops intake while letting queued chunks
// finish; Drain waits for them.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/intervue/internal/adapters/mq/queue"
	"github.com/okian/intervue/internal/adapters/mq/worker"
	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/pkg/logger"
	"github.com/okian/intervue/pkg/metrics"
)

var (
	// ErrDisabled is returned by Enqueue after Disable.
	ErrDisabled = errors.New("upload queue disabled")
	// ErrOutOfOrder is returned for an explicit sequence that is not above
	// the attempt's last accepted one.
	ErrOutOfOrder = errors.New("chunk sequence out of order")
)

// Uploader owns chunk delivery for one runtime.
type Uploader struct {
	queue  *queue.InMemoryQueue
	worker *worker.InMemoryWorker
	logger logger.Logger

	capacity   int
	workerOpts []worker.Option

	disabled atomic.Bool
	started  atomic.Bool

	mu      sync.Mutex
	seq     map[string]int64
	pending int
	idle    chan struct{}
}

// New builds an uploader delivering through d. Call Start to begin delivery.
func New(d worker.Deliverer, opts ...Option) *Uploader {
	u := &Uploader{
		logger: logger.Get().Named("upload"),
		seq:    make(map[string]int64),
		idle:   closedChan(),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.queue = queue.NewInMemoryQueue(queue.WithCapacity(u.capacity))
	wopts := append([]worker.Option{worker.WithLogger(u.logger)}, u.workerOpts...)
	wopts = append(wopts, worker.WithOnDone(u.finished))
	u.worker = worker.NewInMemoryWorker(u.queue, d, wopts...)
	return u
}

// Start runs the delivery worker in the background. It is safe to call once;
// later calls are no-ops.
func (u *Uploader) Start(ctx context.Context) {
	if !u.started.CompareAndSwap(false, true) {
		return
	}
	go u.worker.Run(ctx)
}

// Next returns the next sequence number of an attempt, starting at 1.
func (u *Uploader) Next(attemptID string) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.seq[attemptID]++
	return u.seq[attemptID]
}

// Enqueue hands a chunk to the worker and returns at once. A zero sequence is
// replaced by the attempt's next one; an explicit sequence must be above
// every sequence already accepted for the attempt.
//
// Numbering and the hand-off happen under one lock, so the single worker sees
// each attempt's chunks in sequence order even with concurrent producers.
func (u *Uploader) Enqueue(ctx context.Context, c model.MediaChunk) error { //nolint:gocritic // hugeParam: chunks are values in the queue
	if u.disabled.Load() {
		metrics.RecordUploadRejected()
		return ErrDisabled
	}

	u.mu.Lock()
	last := u.seq[c.AttemptID]
	switch {
	case c.Sequence == 0:
		c.Sequence = last + 1
	case c.Sequence <= last:
		u.mu.Unlock()
		metrics.RecordUploadRejected()
		return fmt.Errorf("%w: sequence %d after %d", ErrOutOfOrder, c.Sequence, last)
	}

	// queue.Enqueue must stay non-blocking while u.mu is held.
	err := u.queue.Enqueue(ctx, c)
	if err == nil {
		u.seq[c.AttemptID] = c.Sequence
		u.addPendingLocked(1)
	}
	u.mu.Unlock()

	if err != nil {
		metrics.RecordUploadRejected()
		u.logger.Warn(ctx, "chunk rejected",
			logger.String("attempt_id", c.AttemptID),
			logger.Int64("sequence", c.Sequence),
			logger.Error(err),
		)
		if errors.Is(err, queue.ErrClosed) {
			return ErrDisabled
		}
		return err
	}
	return nil
}

// Disable stops accepting chunks. Queued and in-flight chunks still finish.
func (u *Uploader) Disable() {
	if u.disabled.Swap(true) {
		return
	}
	_ = u.queue.Close()
}

// Disabled reports whether Disable was called.
func (u *Uploader) Disabled() bool {
	return u.disabled.Load()
}

// Pending returns the number of chunks not yet delivered or dropped.
func (u *Uploader) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pending
}

// Drain waits until every accepted chunk reached a terminal outcome.
func (u *Uploader) Drain(ctx context.Context) error {
	u.mu.Lock()
	idle := u.idle
	u.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Uploader) finished(c worker.Chunk, err error) {
	if err != nil {
		u.logger.Debug(context.Background(), "chunk finished with error",
			logger.String("attempt_id", c.AttemptID),
			logger.Int64("sequence", c.Sequence),
		)
	}
	u.mu.Lock()
	u.addPendingLocked(-1)
	u.mu.Unlock()
}

func (u *Uploader) addPendingLocked(delta int) {
	before := u.pending
	u.pending += delta
	switch {
	case before == 0 && u.pending > 0:
		u.idle = make(chan struct{})
	case before > 0 && u.pending == 0:
		close(u.idle)
	}
	metrics.UpdateUploadQueueSize(u.pending)
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
