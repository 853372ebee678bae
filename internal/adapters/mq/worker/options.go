package worker

import (
	"time"

	"github.com/okian/intervue/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithBackoff sets the first retry delay, the growth factor between retries
// and the total number of delivery attempts per chunk.
func WithBackoff(base time.Duration, multiplier float64, maxAttempts int) Option {
	return func(w *InMemoryWorker) {
		if base > 0 {
			w.backoff.Base = base
		}
		if multiplier >= 1 {
			w.backoff.Multiplier = multiplier
		}
		if maxAttempts > 0 {
			w.backoff.MaxAttempts = maxAttempts
		}
	}
}

// WithSleep replaces the function used to wait between retries.
func WithSleep(sleep func(time.Duration)) Option {
	return func(w *InMemoryWorker) {
		if sleep != nil {
			w.sleep = sleep
		}
	}
}

// WithOnDone registers a callback invoked once per chunk after its terminal
// outcome. err is nil when the chunk was delivered.
func WithOnDone(fn func(Chunk, error)) Option {
	return func(w *InMemoryWorker) {
		w.onDone = fn
	}
}
