package session

import (
	"time"

	"github.com/okian/intervue/internal/adapters/mq/upload"
	"github.com/okian/intervue/internal/domain/proctor"
	"github.com/okian/intervue/internal/domain/turntaking"
	"github.com/okian/intervue/pkg/logger"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCoordinator injects the turn-taking coordinator that owns the
// recognizer. Without one the session accepts typed answers only.
func WithCoordinator(c *turntaking.Coordinator) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.coord = c
		}
	}
}

// WithSpeaker sets the voice used for interviewer turns.
func WithSpeaker(s Speaker) Option {
	return func(o *Orchestrator) {
		o.speaker = s
	}
}

// WithUploader sets the chunk upload queue.
func WithUploader(u *upload.Uploader) Option {
	return func(o *Orchestrator) {
		o.uploader = u
	}
}

// WithMedia pumps chunks from src into the upload queue under the given
// source tag.
func WithMedia(src MediaSource, tag string) Option {
	return func(o *Orchestrator) {
		o.media = src
		if tag != "" {
			o.mediaTag = tag
		}
	}
}

// WithProctoring enables the proctoring monitor over frames. The first
// captured frame is also uploaded once as the proctor photo.
func WithProctoring(frames proctor.FrameSource, load proctor.Loader, opts ...proctor.Option) Option {
	return func(o *Orchestrator) {
		o.frames = frames
		o.loader = load
		o.proctorOpts = opts
	}
}

// WithFallbackOpener sets the question used when the opening request fails
// and the interview has no configured opener.
func WithFallbackOpener(s string) Option {
	return func(o *Orchestrator) {
		if s != "" {
			o.fallbackOpener = s
		}
	}
}

// WithFallbackReply sets the reply used when a chat turn fails.
func WithFallbackReply(s string) Option {
	return func(o *Orchestrator) {
		if s != "" {
			o.fallbackReply = s
		}
	}
}

// WithEndTimeout bounds the final transcript and status posts.
func WithEndTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.endTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}
