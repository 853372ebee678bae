package transcription

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/okian/intervue/pkg/logger"
	"github.com/okian/intervue/pkg/metrics"
)

// Segmented relay defaults.
const (
	DefaultSegment    = 4 * time.Second
	defaultRetryPause = 500 * time.Millisecond
)

// SegmentSource records fixed-duration audio segments.
type SegmentSource interface {
	Record(ctx context.Context, d time.Duration) ([]byte, error)
}

// Relay turns an audio segment into text, usually through the server.
type Relay interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// RelayOption configures a Segmented adapter.
type RelayOption func(*Segmented)

// WithSegmentDuration sets the length of each recorded segment.
func WithSegmentDuration(d time.Duration) RelayOption {
	return func(s *Segmented) {
		if d > 0 {
			s.segment = d
		}
	}
}

// WithRetryPause sets the pause after a failed recording.
func WithRetryPause(d time.Duration) RelayOption {
	return func(s *Segmented) {
		if d >= 0 {
			s.retryPause = d
		}
	}
}

// WithRelayLogger sets the adapter logger.
func WithRelayLogger(l logger.Logger) RelayOption {
	return func(s *Segmented) {
		if l != nil {
			s.log = l
		}
	}
}

// Segmented records audio segments and relays each one for recognition.
// Relay failures are transient; the next segment proceeds.
type Segmented struct {
	source     SegmentSource
	relay      Relay
	segment    time.Duration
	retryPause time.Duration
	log        logger.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelSeg context.CancelFunc
	done      chan struct{}
}

// NewSegmented creates a segmented relay adapter.
func NewSegmented(source SegmentSource, relay Relay, opts ...RelayOption) *Segmented {
	s := &Segmented{
		source:     source,
		relay:      relay,
		segment:    DefaultSegment,
		retryPause: defaultRetryPause,
		log:        logger.Named("transcription.relay"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Adapter.
func (s *Segmented) Name() string { return "relay" }

// Start launches the record/relay loop.
func (s *Segmented) Start(ctx context.Context, sink Sink) error {
	if s.source == nil || s.relay == nil {
		return ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(runCtx, sink, s.done)
	return nil
}

// Stop cancels the loop, including any segment being recorded, and waits.
func (s *Segmented) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelSegment abandons the segment being recorded. The loop starts a new one.
func (s *Segmented) CancelSegment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelSeg != nil {
		s.cancelSeg()
	}
}

func (s *Segmented) loop(ctx context.Context, sink Sink, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		segCtx, cancelSeg := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancelSeg = cancelSeg
		s.mu.Unlock()

		audio, err := s.source.Record(segCtx, s.segment)
		cancelled := segCtx.Err() != nil
		cancelSeg()
		s.mu.Lock()
		s.cancelSeg = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if cancelled {
			continue
		}
		if err != nil {
			s.log.Warn(ctx, "segment recording failed", logger.Error(err))
			metrics.RecordErrorByComponent("transcription", "record")
			if !pause(ctx, s.retryPause) {
				return
			}
			continue
		}
		if len(audio) == 0 {
			continue
		}

		text, err := s.relay.Transcribe(ctx, audio)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			s.log.Warn(ctx, "relay transcription failed", logger.Error(err))
			metrics.RecordErrorByComponent("transcription", "relay")
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			sink.Offer(Result{Text: text, Final: true, At: time.Now()})
		}
	}
}

func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
