package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/intervue/internal/domain/model"
)

func chunk(seq int64) model.MediaChunk {
	return model.MediaChunk{AttemptID: "att-1", Sequence: seq, Payload: []byte{byte(seq)}, Source: "camera"}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Enqueue(ctx, chunk(1)); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	c := <-q.Dequeue(ctx)
	if c.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", c.Sequence)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Order(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if err := q.Enqueue(ctx, chunk(i)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	ch := q.Dequeue(ctx)
	for i := int64(1); i <= 5; i++ {
		if c := <-ch; c.Sequence != i {
			t.Fatalf("expected sequence %d, got %d", i, c.Sequence)
		}
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if err := q.Enqueue(ctx, chunk(1)); err != nil {
		t.Error("expected enqueue to succeed")
	}
	if err := q.Enqueue(ctx, chunk(2)); err != nil {
		t.Error("expected enqueue to succeed")
	}
	if err := q.Enqueue(ctx, chunk(3)); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if err := q.Enqueue(ctx, chunk(1)); err != nil {
		t.Fatal(err)
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Enqueue(ctx, chunk(2)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	ch := q.Dequeue(ctx)
	if c, ok := <-ch; !ok || c.Sequence != 1 {
		t.Fatalf("expected queued chunk to survive close, got %v %v", c.Sequence, ok)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected dequeue channel to be closed within timeout")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}
