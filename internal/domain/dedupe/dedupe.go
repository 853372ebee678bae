// Package dedupe tracks media chunk receipts so a retried upload of an
// already stored chunk is acknowledged without being written twice.
package dedupe

import (
	"context"
	"strconv"
	"sync"
)

const defaultMaxSize = 100_000

// Deduper records seen keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so a failed write can be retried.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// ChunkKey is the receipt key of one chunk of one attempt.
func ChunkKey(attemptID string, sequence int64) string {
	return attemptID + ":" + strconv.FormatInt(sequence, 10)
}

// inMemoryDeduper keeps up to maxSize keys and evicts the oldest first.
// With maxSize <= 0 nothing is evicted.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]uint64 // key -> insertion stamp
	order   []string          // ring of keys by insertion, bounded mode only
	stamps  []uint64
	head    int
	count   int
	stamp   uint64
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]uint64)
	if d.maxSize > 0 {
		d.order = make([]string, d.maxSize)
		d.stamps = make([]uint64, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	d.stamp++
	d.seen[key] = d.stamp
	if d.maxSize <= 0 {
		return false
	}

	if d.count == d.maxSize {
		d.evictOldestLocked()
	}
	tail := (d.head + d.count) % d.maxSize
	d.order[tail] = key
	d.stamps[tail] = d.stamp
	d.count++
	return false
}

// evictOldestLocked frees the oldest ring slot. The key in it is forgotten
// unless it was unrecorded or recorded again since.
func (d *inMemoryDeduper) evictOldestLocked() {
	key, stamp := d.order[d.head], d.stamps[d.head]
	d.order[d.head] = ""
	d.head = (d.head + 1) % d.maxSize
	d.count--
	if cur, ok := d.seen[key]; ok && cur == stamp {
		delete(d.seen, key)
	}
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
