package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/intervue/internal/adapters/mq/queue"
	worker "github.com/okian/intervue/internal/adapters/mq/worker"
	"github.com/okian/intervue/internal/domain/model"
	logging "github.com/okian/intervue/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// mockDeliverer fails the first failures[seq] deliveries of each sequence.
type mockDeliverer struct {
	mu        sync.Mutex
	failures  map[int64]int
	calls     map[int64]int
	delivered []int64
	ctxErrs   []error
}

func newMockDeliverer() *mockDeliverer {
	return &mockDeliverer{failures: map[int64]int{}, calls: map[int64]int{}}
}

func (m *mockDeliverer) Deliver(ctx context.Context, c worker.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[c.Sequence]++
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	if m.calls[c.Sequence] <= m.failures[c.Sequence] {
		return errors.New("status 503")
	}
	m.delivered = append(m.delivered, c.Sequence)
	return nil
}

func (m *mockDeliverer) snapshot() (map[int64]int, []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make(map[int64]int, len(m.calls))
	for k, v := range m.calls {
		calls[k] = v
	}
	return calls, append([]int64(nil), m.delivered...)
}

type outcomes struct {
	mu   sync.Mutex
	errs map[int64]error
	all  chan struct{}
	want int
}

func newOutcomes(want int) *outcomes {
	return &outcomes{errs: map[int64]error{}, all: make(chan struct{}), want: want}
}

func (o *outcomes) record(c worker.Chunk, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[c.Sequence] = err
	if len(o.errs) == o.want {
		close(o.all)
	}
}

func enqueue(q *queue.InMemoryQueue, seqs ...int64) {
	for _, s := range seqs {
		_ = q.Enqueue(context.Background(), model.MediaChunk{AttemptID: "att-1", Sequence: s})
	}
}

func TestBackoffDelay(t *testing.T) {
	convey.Convey("Given the default upload backoff", t, func() {
		b := worker.Backoff{Base: 500 * time.Millisecond, Multiplier: 1.8, MaxAttempts: 5}

		convey.Convey("Then delays grow by the multiplier", func() {
			convey.So(b.Delay(1), convey.ShouldEqual, 500*time.Millisecond)
			convey.So(b.Delay(2), convey.ShouldEqual, 900*time.Millisecond)
			convey.So(b.Delay(3), convey.ShouldEqual, 1620*time.Millisecond)
		})
	})
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given an upload worker", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		d := newMockDeliverer()

		var sleepMu sync.Mutex
		var sleeps []time.Duration
		sleep := func(dur time.Duration) {
			sleepMu.Lock()
			sleeps = append(sleeps, dur)
			sleepMu.Unlock()
		}

		convey.Convey("When every chunk is delivered on the first try", func() {
			out := newOutcomes(3)
			w := worker.NewInMemoryWorker(q, d, worker.WithSleep(sleep), worker.WithOnDone(out.record))
			enqueue(q, 1, 2, 3)
			go w.Run(context.Background())
			<-out.all

			convey.Convey("Then chunks are delivered in order without retries", func() {
				_, delivered := d.snapshot()
				convey.So(delivered, convey.ShouldResemble, []int64{1, 2, 3})
				convey.So(sleeps, convey.ShouldBeEmpty)
				convey.So(out.errs[2], convey.ShouldBeNil)
			})
		})

		convey.Convey("When a chunk fails transiently", func() {
			d.failures[1] = 2
			out := newOutcomes(2)
			w := worker.NewInMemoryWorker(q, d, worker.WithSleep(sleep), worker.WithOnDone(out.record))
			enqueue(q, 1, 2)
			go w.Run(context.Background())
			<-out.all

			convey.Convey("Then it is retried with growing delays before the next chunk", func() {
				calls, delivered := d.snapshot()
				convey.So(calls[1], convey.ShouldEqual, 3)
				convey.So(delivered, convey.ShouldResemble, []int64{1, 2})
				convey.So(sleeps, convey.ShouldResemble, []time.Duration{500 * time.Millisecond, 900 * time.Millisecond})
			})
		})

		convey.Convey("When a chunk fails every attempt", func() {
			d.failures[1] = 100
			out := newOutcomes(2)
			w := worker.NewInMemoryWorker(q, d, worker.WithSleep(sleep), worker.WithOnDone(out.record))
			enqueue(q, 1, 2)
			go w.Run(context.Background())
			<-out.all

			convey.Convey("Then it is dropped after five attempts and later chunks still go out", func() {
				calls, delivered := d.snapshot()
				convey.So(calls[1], convey.ShouldEqual, 5)
				convey.So(len(sleeps), convey.ShouldEqual, 4)
				convey.So(errors.Is(out.errs[1], worker.ErrChunkLost), convey.ShouldBeTrue)
				convey.So(delivered, convey.ShouldResemble, []int64{2})
			})
		})

		convey.Convey("When one chunk in the middle of six always fails", func() {
			d.failures[3] = 100
			out := newOutcomes(6)
			w := worker.NewInMemoryWorker(q, d, worker.WithSleep(sleep), worker.WithOnDone(out.record))
			enqueue(q, 1, 2, 3, 4, 5, 6)
			go w.Run(context.Background())
			<-out.all

			convey.Convey("Then only that chunk is lost and the rest arrive in order", func() {
				calls, delivered := d.snapshot()
				convey.So(delivered, convey.ShouldResemble, []int64{1, 2, 4, 5, 6})
				convey.So(calls[3], convey.ShouldEqual, 5)
				for _, seq := range []int64{1, 2, 4, 5, 6} {
					convey.So(calls[seq], convey.ShouldEqual, 1)
					convey.So(out.errs[seq], convey.ShouldBeNil)
				}
				convey.So(errors.Is(out.errs[3], worker.ErrChunkLost), convey.ShouldBeTrue)
				convey.So(len(sleeps), convey.ShouldEqual, 4)
				convey.So(sleeps[:2], convey.ShouldResemble, []time.Duration{500 * time.Millisecond, 900 * time.Millisecond})
			})
		})

		convey.Convey("When a custom backoff is configured", func() {
			d.failures[1] = 100
			out := newOutcomes(1)
			w := worker.NewInMemoryWorker(q, d,
				worker.WithSleep(sleep),
				worker.WithOnDone(out.record),
				worker.WithBackoff(10*time.Millisecond, 2, 3),
				worker.WithName("uploader"),
			)
			enqueue(q, 1)
			go w.Run(context.Background())
			<-out.all

			convey.Convey("Then it is honoured", func() {
				calls, _ := d.snapshot()
				convey.So(calls[1], convey.ShouldEqual, 3)
				convey.So(sleeps, convey.ShouldResemble, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond})
			})
		})

		convey.Convey("When the run context is canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			release := make(chan struct{})
			started := make(chan struct{})
			blocking := &blockingDeliverer{started: started, release: release}
			w := worker.NewInMemoryWorker(q, blocking, worker.WithSleep(sleep))
			enqueue(q, 1)
			go w.Run(ctx)
			<-started
			cancel()
			close(release)
			<-w.Done()

			convey.Convey("Then the in-flight delivery saw a live context", func() {
				convey.So(blocking.ctxErr, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the queue is closed", func() {
			w := worker.NewInMemoryWorker(q, d, worker.WithSleep(sleep))
			enqueue(q, 1, 2)
			_ = q.Close()
			go w.Run(context.Background())

			convey.Convey("Then the remaining chunks are delivered before the worker stops", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
				}
				_, delivered := d.snapshot()
				convey.So(delivered, convey.ShouldResemble, []int64{1, 2})
			})
		})

		convey.Convey("When shutting down an idle worker", func() {
			w := worker.NewInMemoryWorker(q, d)
			go w.Run(context.Background())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.Convey("Then it stops gracefully", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

type blockingDeliverer struct {
	started chan struct{}
	release chan struct{}
	ctxErr  error
}

func (b *blockingDeliverer) Deliver(ctx context.Context, _ worker.Chunk) error {
	close(b.started)
	<-b.release
	b.ctxErr = ctx.Err()
	return nil
}
