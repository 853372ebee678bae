package repository

import "github.com/okian/intervue/pkg/logger"

// Option applies a configuration option to the GormStore.
type Option func(*gormOptions)

type gormOptions struct {
	logSQL bool
	logger logger.Logger
}

// WithSQLLogging traces every statement at debug level.
func WithSQLLogging(on bool) Option {
	return func(o *gormOptions) {
		o.logSQL = on
	}
}

// WithLogger sets the logger SQL traces and slow query warnings go to.
func WithLogger(l logger.Logger) Option {
	return func(o *gormOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
