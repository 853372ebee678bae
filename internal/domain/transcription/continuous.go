package transcription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/intervue/pkg/logger"
)

// Continuous recognition defaults.
const (
	DefaultSilence      = 350 * time.Millisecond
	DefaultWatchdogIdle = 8 * time.Second
	DefaultMaxRun       = 50 * time.Second
	defaultTick         = 50 * time.Millisecond
)

// Engine opens a streaming recognizer run.
type Engine interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is one recognizer run. Results is closed when the run ends on its own.
type Stream interface {
	Results() <-chan Result
	Close() error
}

// Timeouts parameterize the silence and watchdog decisions.
type Timeouts struct {
	Silence      time.Duration
	WatchdogIdle time.Duration
	MaxRun       time.Duration
}

// Timing is the observable recognizer state at a given instant.
type Timing struct {
	LastEvent  time.Time // last result of any kind
	RunStart   time.Time
	HasInterim bool
}

// Decision is what the loop should do at a tick.
type Decision struct {
	Finalize bool
	Restart  bool
	Reason   string
}

// Decide is the pure silence/watchdog policy.
func Decide(now time.Time, t Timing, to Timeouts) Decision {
	var d Decision
	idle := now.Sub(t.LastEvent)
	if t.HasInterim && idle >= to.Silence {
		d.Finalize = true
	}
	switch {
	case idle >= to.WatchdogIdle:
		d.Restart, d.Reason = true, "idle"
	case now.Sub(t.RunStart) >= to.MaxRun:
		d.Restart, d.Reason = true, "max_run"
	}
	if d.Restart && t.HasInterim {
		d.Finalize = true
	}
	return d
}

// ContinuousOption configures a Continuous adapter.
type ContinuousOption func(*Continuous)

// WithTimeouts overrides the silence and watchdog durations.
func WithTimeouts(to Timeouts) ContinuousOption {
	return func(c *Continuous) {
		if to.Silence > 0 {
			c.timeouts.Silence = to.Silence
		}
		if to.WatchdogIdle > 0 {
			c.timeouts.WatchdogIdle = to.WatchdogIdle
		}
		if to.MaxRun > 0 {
			c.timeouts.MaxRun = to.MaxRun
		}
	}
}

// WithTick sets how often the loop evaluates Decide.
func WithTick(d time.Duration) ContinuousOption {
	return func(c *Continuous) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ContinuousOption {
	return func(c *Continuous) {
		if now != nil {
			c.now = now
		}
	}
}

// WithContinuousLogger sets the adapter logger.
func WithContinuousLogger(l logger.Logger) ContinuousOption {
	return func(c *Continuous) {
		if l != nil {
			c.log = l
		}
	}
}

// Continuous streams interim and final results from an Engine, finalizing
// interim text after a silence and restarting hung or long runs.
type Continuous struct {
	engine   Engine
	timeouts Timeouts
	tick     time.Duration
	now      func() time.Time
	log      logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	run     uint64
	stream  Stream
	sink    Sink
	timing  Timing
	interim string
}

// NewContinuous creates a continuous recognition adapter.
func NewContinuous(engine Engine, opts ...ContinuousOption) *Continuous {
	c := &Continuous{
		engine: engine,
		timeouts: Timeouts{
			Silence:      DefaultSilence,
			WatchdogIdle: DefaultWatchdogIdle,
			MaxRun:       DefaultMaxRun,
		},
		tick: defaultTick,
		now:  time.Now,
		log:  logger.Named("transcription.continuous"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Adapter.
func (c *Continuous) Name() string { return "continuous" }

// Start opens the first run synchronously so an unavailable engine is
// reported to the caller.
func (c *Continuous) Start(ctx context.Context, sink Sink) error {
	if c.engine == nil {
		return ErrUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := c.engine.Open(runCtx)
	if err != nil {
		cancel()
		return errors.Join(ErrUnavailable, err)
	}
	// A loop abandoned by a timed-out Stop may still hold its stream.
	if c.stream != nil {
		_ = c.stream.Close()
	}
	now := c.now()
	c.run++
	c.cancel = cancel
	c.done = make(chan struct{})
	c.stream = stream
	c.sink = sink
	c.timing = Timing{LastEvent: now, RunStart: now}
	c.interim = ""

	go c.loop(runCtx, c.run, c.done)
	return nil
}

// Stop cancels the run and waits for the loop to exit. The run is cancelled
// under the lock, so a loop that sees a live context still owns c.stream.
func (c *Continuous) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	if cancel != nil {
		cancel()
	}
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelSegment drops the current interim hypothesis.
func (c *Continuous) CancelSegment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interim = ""
	c.timing.HasInterim = false
}

func (c *Continuous) loop(ctx context.Context, run uint64, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	defer func() {
		// After a newer Start, c.stream belongs to that run.
		c.mu.Lock()
		var s Stream
		if c.run == run {
			s, c.stream = c.stream, nil
		}
		c.mu.Unlock()
		if s != nil {
			_ = s.Close()
		}
	}()

	for {
		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		results := c.stream.Results()
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case r, ok := <-results:
			if !ok {
				c.restart(ctx, "ended")
				continue
			}
			c.handle(r)
		case <-ticker.C:
			c.step(ctx, c.now())
		}
	}
}

// handle records one result and forwards it to the sink.
func (c *Continuous) handle(r Result) {
	if r.At.IsZero() {
		r.At = c.now()
	}
	c.mu.Lock()
	c.timing.LastEvent = c.now()
	if r.Final {
		c.interim = ""
		c.timing.HasInterim = false
	} else {
		c.interim = r.Text
		c.timing.HasInterim = r.Text != ""
	}
	sink := c.sink
	c.mu.Unlock()
	sink.Offer(r)
}

// step applies Decide at now.
func (c *Continuous) step(ctx context.Context, now time.Time) {
	c.mu.Lock()
	d := Decide(now, c.timing, c.timeouts)
	var final Result
	if d.Finalize {
		final = Result{Text: c.interim, Final: true, At: now}
		c.interim = ""
		c.timing.HasInterim = false
	}
	sink := c.sink
	c.mu.Unlock()

	if d.Finalize && final.Text != "" {
		sink.Offer(final)
	}
	if d.Restart {
		c.restart(ctx, d.Reason)
	}
}

// restart replaces the current stream. Failures are retried on the next
// restart decision; the loop keeps the closed stream's nil channel until then.
func (c *Continuous) restart(ctx context.Context, reason string) {
	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	old := c.stream
	c.stream = nil
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	c.log.Debug(ctx, "restarting recognizer", logger.String("reason", reason))

	next, err := c.engine.Open(ctx)
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		if next != nil {
			_ = next.Close()
		}
		return
	}
	c.timing.RunStart = now
	c.timing.LastEvent = now
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn(ctx, "recognizer restart failed", logger.Error(err))
		}
		c.stream = deadStream{}
		return
	}
	c.stream = next
}

// deadStream stands in after a failed restart. Its nil channel never fires,
// so the watchdog drives the next attempt.
type deadStream struct{}

func (deadStream) Results() <-chan Result { return nil }
func (deadStream) Close() error           { return nil }
