package turntaking

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/intervue/internal/domain/transcription"
	"github.com/okian/intervue/pkg/logger"
	"github.com/okian/intervue/pkg/metrics"
)

// SpeechToken identifies one playback. Ends for anything but the latest
// token are stale.
type SpeechToken uint64

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithPending shares an existing pending buffer.
func WithPending(p *transcription.Pending) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.pending = p
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// Coordinator owns the recognizer lifecycle for one attempt. It is the only
// gate between recognizer output and the pending buffer.
type Coordinator struct {
	adapter transcription.Adapter
	pending *transcription.Pending
	log     logger.Logger

	state atomic.Value // State
	ended atomic.Bool
	// gate orders Offer against state changes: once a transition out of
	// LISTENING returns, no result that passed the check is still appending.
	// Offer never takes mu, because stopping the recognizer under mu waits
	// for the goroutine that calls Offer.
	gate sync.RWMutex

	mu           sync.Mutex
	pausedForBot bool
	muted        bool
	speech       SpeechToken
}

// New creates a coordinator around adapter.
func New(adapter transcription.Adapter, opts ...Option) *Coordinator {
	c := &Coordinator{
		adapter: adapter,
		pending: transcription.NewPending(),
		log:     logger.Named("turntaking"),
	}
	c.state.Store(StateIdle)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	return c.state.Load().(State)
}

// Pending returns the buffer fed by accepted results.
func (c *Coordinator) Pending() *transcription.Pending {
	return c.pending
}

// Muted reports whether the candidate turned the microphone off.
func (c *Coordinator) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Ended reports whether End was called.
func (c *Coordinator) Ended() bool {
	return c.ended.Load()
}

// Offer implements transcription.Sink. Results are accepted only while
// LISTENING; anything arriving during playback or after End is discarded.
func (c *Coordinator) Offer(r transcription.Result) bool {
	kind := "interim"
	if r.Final {
		kind = "final"
	}
	c.gate.RLock()
	if c.ended.Load() || c.State() != StateListening {
		c.gate.RUnlock()
		metrics.RecordTranscriptionResult(kind, "discarded")
		return false
	}
	if r.Final {
		c.pending.Append(r.Text)
	} else {
		c.pending.SetInterim(r.Text)
	}
	c.gate.RUnlock()
	metrics.RecordTranscriptionResult(kind, "accepted")
	return true
}

// StartListening starts the recognizer. During playback it records the wish
// so listening resumes when playback ends.
func (c *Coordinator) StartListening(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended.Load() {
		return ErrEnded
	}
	if c.muted {
		return ErrMuted
	}
	switch c.State() {
	case StateListening:
		return nil
	case StateBotSpeaking:
		c.pausedForBot = true
		return nil
	}
	return c.listenLocked(ctx)
}

// Mute stops the recognizer and keeps it off until Unmute, including after
// playback ends.
func (c *Coordinator) Mute(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended.Load() {
		return ErrEnded
	}
	c.muted = true
	c.pausedForBot = false
	wasListening := c.State() == StateListening
	if err := c.applyLocked(EventMute); err != nil {
		return err
	}
	if wasListening {
		c.stopRecognizerLocked(ctx)
	}
	return nil
}

// Unmute clears the mute and listens now, or after playback if the bot is
// speaking.
func (c *Coordinator) Unmute(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended.Load() {
		return ErrEnded
	}
	c.muted = false
	switch c.State() {
	case StateBotSpeaking:
		c.pausedForBot = true
		return nil
	case StateListening:
		return nil
	}
	return c.listenLocked(ctx)
}

// BotSpeechStarted enters BOT_SPEAKING. The recognizer is stopped and any
// in-flight segment cancelled before this returns.
func (c *Coordinator) BotSpeechStarted(ctx context.Context) (SpeechToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended.Load() {
		return 0, ErrEnded
	}
	prev := c.State()
	if err := c.applyLocked(EventBotStart); err != nil {
		return 0, err
	}
	c.speech++
	if prev == StateListening {
		c.pausedForBot = true
		c.stopRecognizerLocked(ctx)
	}
	if c.adapter != nil {
		c.adapter.CancelSegment()
	}
	c.pending.SetInterim("")
	return c.speech, nil
}

// BotSpeechEnded leaves BOT_SPEAKING for the given playback, whether it
// finished, failed or was cancelled. A stale token is ignored. Listening
// resumes only when it was paused for the bot and the candidate has not muted.
func (c *Coordinator) BotSpeechEnded(ctx context.Context, token SpeechToken, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended.Load() || c.State() != StateBotSpeaking {
		return
	}
	if token != c.speech {
		c.log.Debug(ctx, "stale speech end ignored",
			logger.Int64("token", int64(token)),
			logger.Int64("current", int64(c.speech)),
		)
		return
	}
	if err := c.applyLocked(EventBotEnd); err != nil {
		c.log.Error(ctx, "bot end transition failed", logger.Error(err))
		return
	}
	resume := c.pausedForBot && !c.muted
	c.pausedForBot = false
	c.log.Debug(ctx, "bot speech ended", logger.String("reason", reason), logger.Bool("resume", resume))
	if !resume {
		return
	}
	if err := c.listenLocked(ctx); err != nil {
		c.log.Warn(ctx, "resume listening failed", logger.Error(err))
	}
}

// End makes the coordinator terminal: IDLE, recognizer stopped, never resumes.
func (c *Coordinator) End(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate.Lock()
	already := c.ended.Swap(true)
	c.gate.Unlock()
	if already {
		return
	}
	wasListening := c.State() == StateListening
	_ = c.applyLocked(EventEnd)
	c.pausedForBot = false
	if c.adapter != nil {
		c.adapter.CancelSegment()
	}
	if wasListening {
		c.stopRecognizerLocked(ctx)
	}
}

func (c *Coordinator) listenLocked(ctx context.Context) error {
	if c.adapter == nil {
		return transcription.ErrUnavailable
	}
	if err := c.adapter.Start(ctx, c); err != nil {
		metrics.RecordErrorByComponent("turntaking", "recognizer_start")
		return err
	}
	return c.applyLocked(EventListen)
}

func (c *Coordinator) stopRecognizerLocked(ctx context.Context) {
	if c.adapter == nil {
		return
	}
	if err := c.adapter.Stop(ctx); err != nil {
		c.log.Warn(ctx, "recognizer stop failed", logger.String("adapter", c.adapter.Name()), logger.Error(err))
	}
}

func (c *Coordinator) applyLocked(e Event) error {
	next, err := Transition(c.State(), e)
	if err != nil {
		return err
	}
	c.gate.Lock()
	c.state.Store(next)
	c.gate.Unlock()
	return nil
}
