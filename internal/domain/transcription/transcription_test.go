package transcription

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okian/intervue/pkg/logger"
)

type recordingSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *recordingSink) Offer(r Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return true
}

func (s *recordingSink) finals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.results {
		if r.Final {
			out = append(out, r.Text)
		}
	}
	return out
}

func TestPending(t *testing.T) {
	p := NewPending()
	p.Append("hello")
	p.SetInterim("wor")
	require.Equal(t, "hello wor", p.Text())

	p.Append(" world ")
	require.Equal(t, "hello world", p.Text())

	p.SetInterim("and")
	require.Equal(t, "hello world and", p.Take())
	require.Empty(t, p.Text())

	p.Append("x")
	p.Clear()
	require.Empty(t, p.Take())
}

func TestDecide(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := Timeouts{Silence: DefaultSilence, WatchdogIdle: DefaultWatchdogIdle, MaxRun: DefaultMaxRun}

	tests := []struct {
		name   string
		now    time.Time
		timing Timing
		want   Decision
	}{
		{
			name:   "interim within silence window",
			now:    base.Add(300 * time.Millisecond),
			timing: Timing{LastEvent: base, RunStart: base, HasInterim: true},
			want:   Decision{},
		},
		{
			name:   "interim after silence finalizes",
			now:    base.Add(350 * time.Millisecond),
			timing: Timing{LastEvent: base, RunStart: base, HasInterim: true},
			want:   Decision{Finalize: true},
		},
		{
			name:   "silence without interim does nothing",
			now:    base.Add(time.Second),
			timing: Timing{LastEvent: base, RunStart: base},
			want:   Decision{},
		},
		{
			name:   "idle watchdog restarts",
			now:    base.Add(8 * time.Second),
			timing: Timing{LastEvent: base, RunStart: base},
			want:   Decision{Restart: true, Reason: "idle"},
		},
		{
			name:   "long run restarts and finalizes interim",
			now:    base.Add(50 * time.Second),
			timing: Timing{LastEvent: base.Add(49*time.Second + 900*time.Millisecond), RunStart: base, HasInterim: true},
			want:   Decision{Finalize: true, Restart: true, Reason: "max_run"},
		},
		{
			name:   "busy run below limits",
			now:    base.Add(49 * time.Second),
			timing: Timing{LastEvent: base.Add(48 * time.Second), RunStart: base},
			want:   Decision{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Decide(tc.now, tc.timing, to))
		})
	}
}

type fakeStream struct {
	ch     chan Result
	closed atomic.Bool
}

func newFakeStream() *fakeStream { return &fakeStream{ch: make(chan Result, 8)} }

func (s *fakeStream) Results() <-chan Result { return s.ch }
func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeEngine struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
}

func (e *fakeEngine) Open(context.Context) (Stream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	s := newFakeStream()
	e.streams = append(e.streams, s)
	return s, nil
}

func (e *fakeEngine) opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.streams)
}

func (e *fakeEngine) latest() *fakeStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streams[len(e.streams)-1]
}

func TestContinuousStepFinalizesAfterSilence(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	sink := &recordingSink{}
	c := NewContinuous(&fakeEngine{}, WithClock(func() time.Time { return now }), WithContinuousLogger(logger.Nop()))
	c.sink = sink
	c.stream = newFakeStream()
	c.timing = Timing{LastEvent: base, RunStart: base}

	c.handle(Result{Text: "I think"})
	now = base.Add(200 * time.Millisecond)
	c.step(context.Background(), now)
	require.Empty(t, sink.finals())

	now = base.Add(400 * time.Millisecond)
	c.step(context.Background(), now)
	require.Equal(t, []string{"I think"}, sink.finals())

	// Already finalized; another silent tick must not repeat it.
	c.step(context.Background(), base.Add(800*time.Millisecond))
	require.Len(t, sink.finals(), 1)
}

func TestContinuousCancelSegmentDropsInterim(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sink := &recordingSink{}
	c := NewContinuous(&fakeEngine{}, WithClock(func() time.Time { return base }), WithContinuousLogger(logger.Nop()))
	c.sink = sink
	c.stream = newFakeStream()
	c.timing = Timing{LastEvent: base, RunStart: base}

	c.handle(Result{Text: "half a sentence"})
	c.CancelSegment()
	c.step(context.Background(), base.Add(time.Second))
	require.Empty(t, sink.finals())
}

func TestContinuousWatchdogRestarts(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := &fakeEngine{}
	c := NewContinuous(engine, WithClock(func() time.Time { return base }), WithContinuousLogger(logger.Nop()))
	first, _ := engine.Open(context.Background())
	c.sink = &recordingSink{}
	c.stream = first
	c.timing = Timing{LastEvent: base.Add(-9 * time.Second), RunStart: base.Add(-9 * time.Second)}

	c.step(context.Background(), base)
	require.Equal(t, 2, engine.opened())
	require.True(t, first.(*fakeStream).closed.Load())
	require.Equal(t, base, c.timing.RunStart)
}

func TestContinuousStartStop(t *testing.T) {
	engine := &fakeEngine{}
	sink := &recordingSink{}
	c := NewContinuous(engine,
		WithTick(5*time.Millisecond),
		WithTimeouts(Timeouts{Silence: 20 * time.Millisecond}),
		WithContinuousLogger(logger.Nop()),
	)

	require.NoError(t, c.Start(context.Background(), sink))
	require.ErrorIs(t, c.Start(context.Background(), sink), ErrAlreadyRunning)

	engine.latest().ch <- Result{Text: "final words", Final: true}
	engine.latest().ch <- Result{Text: "trailing"}
	require.Eventually(t, func() bool {
		return len(sink.finals()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"final words", "trailing"}, sink.finals())

	require.NoError(t, c.Stop(context.Background()))
	require.True(t, engine.latest().closed.Load())
	require.NoError(t, c.Stop(context.Background()))
}

type heldSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *heldSink) Offer(Result) bool {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return true
}

func TestContinuousRestartAfterAbandonedStop(t *testing.T) {
	engine := &fakeEngine{}
	c := NewContinuous(engine, WithTick(time.Hour), WithContinuousLogger(logger.Nop()))

	held := &heldSink{entered: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, c.Start(context.Background(), held))
	first := engine.latest()
	c.mu.Lock()
	firstDone := c.done
	c.mu.Unlock()

	// Park the first loop inside its sink so Stop gives up waiting.
	first.ch <- Result{Text: "held", Final: true}
	<-held.entered
	expired, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, c.Stop(expired), context.Canceled)

	sink := &recordingSink{}
	require.NoError(t, c.Start(context.Background(), sink))
	second := engine.latest()
	require.True(t, first.closed.Load())

	close(held.release)
	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("first loop did not exit")
	}

	c.mu.Lock()
	current := c.stream
	c.mu.Unlock()
	require.Same(t, second, current)
	require.False(t, second.closed.Load())

	second.ch <- Result{Text: "still listening", Final: true}
	require.Eventually(t, func() bool {
		return len(sink.finals()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"still listening"}, sink.finals())

	require.NoError(t, c.Stop(context.Background()))
	require.True(t, second.closed.Load())
	require.Equal(t, 2, engine.opened())
}

func TestContinuousStartUnavailable(t *testing.T) {
	c := NewContinuous(&fakeEngine{err: errors.New("no microphone")}, WithContinuousLogger(logger.Nop()))
	err := c.Start(context.Background(), &recordingSink{})
	require.ErrorIs(t, err, ErrUnavailable)

	require.ErrorIs(t, NewContinuous(nil).Start(context.Background(), &recordingSink{}), ErrUnavailable)
}

type scriptedSource struct {
	calls atomic.Int32
	fail  int32 // call number that fails
}

func (s *scriptedSource) Record(ctx context.Context, d time.Duration) ([]byte, error) {
	n := s.calls.Add(1)
	if n == s.fail {
		return nil, errors.New("device busy")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d):
		return []byte{byte(n)}, nil
	}
}

type scriptedRelay struct {
	calls atomic.Int32
}

func (r *scriptedRelay) Transcribe(_ context.Context, audio []byte) (string, error) {
	r.calls.Add(1)
	switch audio[0] {
	case 2:
		return "", errors.New("relay 502")
	case 3:
		return "   ", nil
	}
	return "segment", nil
}

func TestSegmentedRelayContinuesAfterFailures(t *testing.T) {
	src := &scriptedSource{fail: 4}
	relay := &scriptedRelay{}
	sink := &recordingSink{}
	s := NewSegmented(src, relay,
		WithSegmentDuration(2*time.Millisecond),
		WithRetryPause(0),
		WithRelayLogger(logger.Nop()),
	)

	require.NoError(t, s.Start(context.Background(), sink))
	require.Eventually(t, func() bool {
		return len(sink.finals()) >= 3
	}, time.Second, 2*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	for _, text := range sink.finals() {
		require.Equal(t, "segment", text)
	}
	require.GreaterOrEqual(t, relay.calls.Load(), int32(4))
}

type blockingSource struct {
	started chan struct{}
	calls   atomic.Int32
}

func (b *blockingSource) Record(ctx context.Context, _ time.Duration) ([]byte, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	<-ctx.Done()
	return []byte{1}, ctx.Err()
}

func TestSegmentedCancelSegment(t *testing.T) {
	src := &blockingSource{started: make(chan struct{})}
	relay := &scriptedRelay{}
	s := NewSegmented(src, relay, WithRelayLogger(logger.Nop()))

	require.NoError(t, s.Start(context.Background(), &recordingSink{}))
	<-src.started
	s.CancelSegment()
	require.Eventually(t, func() bool { return src.calls.Load() >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	require.Zero(t, relay.calls.Load())
}

func TestSegmentedUnavailable(t *testing.T) {
	require.ErrorIs(t, NewSegmented(nil, nil).Start(context.Background(), &recordingSink{}), ErrUnavailable)
}
