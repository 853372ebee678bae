package upload

import (
	"github.com/okian/intervue/internal/adapters/mq/worker"
	"github.com/okian/intervue/pkg/logger"
)

// Option applies a configuration option to the Uploader.
type Option func(*Uploader)

// WithCapacity bounds the number of chunks waiting for delivery.
func WithCapacity(capacity int) Option {
	return func(u *Uploader) {
		if capacity > 0 {
			u.capacity = capacity
		}
	}
}

// WithWorkerOptions forwards options to the delivery worker.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(u *Uploader) {
		u.workerOpts = append(u.workerOpts, opts...)
	}
}

// WithLogger sets a custom logger for the uploader.
func WithLogger(l logger.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}
