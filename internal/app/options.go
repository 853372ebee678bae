package service

import (
	"time"

	"github.com/okian/intervue/internal/adapters/blob"
	"github.com/okian/intervue/internal/adapters/catalog"
	"github.com/okian/intervue/internal/adapters/repository"
	"github.com/okian/intervue/internal/domain/dedupe"
	"github.com/okian/intervue/internal/domain/report"
	"github.com/okian/intervue/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the attempt, transcript and report store.
func WithStore(s repository.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.store = s
		}
	}
}

// WithCatalog sets the interview catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(svc *Service) {
		if c != nil {
			svc.catalog = c
		}
	}
}

// WithBlobs sets where chunks and proctor photos are written.
func WithBlobs(b *blob.Store) Option {
	return func(svc *Service) {
		if b != nil {
			svc.blobs = b
		}
	}
}

// WithEngine sets the report scoring engine.
func WithEngine(e *report.Engine) Option {
	return func(svc *Service) {
		if e != nil {
			svc.engine = e
		}
	}
}

// WithReplier sets the model producing interviewer turns.
func WithReplier(r Replier) Option {
	return func(svc *Service) {
		svc.replier = r
	}
}

// WithTranscriber sets the speech-to-text backend of the relay endpoint.
func WithTranscriber(t Transcriber) Option {
	return func(svc *Service) {
		svc.transcriber = t
	}
}

// WithDeduper sets the chunk receipt tracker.
func WithDeduper(d dedupe.Deduper) Option {
	return func(svc *Service) {
		if d != nil {
			svc.deduper = d
		}
	}
}

// WithDedupeSize sets the size of the default chunk receipt tracker.
func WithDedupeSize(size int) Option {
	return func(svc *Service) {
		if size > 0 {
			svc.dedupeSize = size
		}
	}
}

// WithBypassLLM makes every report use the fallback heuristic unless a
// request says otherwise.
func WithBypassLLM(on bool) Option {
	return func(svc *Service) {
		svc.bypassLLM = on
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

// WithIDGenerator overrides attempt id generation.
func WithIDGenerator(gen func() string) Option {
	return func(svc *Service) {
		if gen != nil {
			svc.newID = gen
		}
	}
}
