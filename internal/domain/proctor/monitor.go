// Package proctor periodically checks that the same person stays in front of
// the camera. Every result is advisory: the monitor reports statuses and
// never ends an interview.
package proctor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/pkg/logger"
	"github.com/okian/intervue/pkg/metrics"
)

// Monitor defaults.
const (
	DefaultMinInterval = 2 * time.Second
	DefaultMaxInterval = 5 * time.Second
	DefaultThreshold   = 0.25
)

// Option applies a configuration option to the Monitor.
type Option func(*Monitor)

// WithInterval bounds the randomized delay between checks.
func WithInterval(minInterval, maxInterval time.Duration) Option {
	return func(m *Monitor) {
		if minInterval > 0 && maxInterval >= minInterval {
			m.minInterval, m.maxInterval = minInterval, maxInterval
		}
	}
}

// WithThreshold sets the mean absolute difference above which a face is a mismatch.
func WithThreshold(t float64) Option {
	return func(m *Monitor) {
		if t > 0 && t <= 1 {
			m.threshold = t
		}
	}
}

// WithRand sets the interval randomness source.
func WithRand(r *rand.Rand) Option {
	return func(m *Monitor) {
		if r != nil {
			m.rng = r
		}
	}
}

// WithStatusHandler is called with the status of every check.
func WithStatusHandler(fn func(context.Context, model.ProctorStatus)) Option {
	return func(m *Monitor) {
		if fn != nil {
			m.onStatus = fn
		}
	}
}

// WithLogger sets the monitor logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// Monitor compares the live face against a baseline captured at the first
// successful check. The baseline is kept in memory only.
type Monitor struct {
	frames      FrameSource
	load        Loader
	minInterval time.Duration
	maxInterval time.Duration
	threshold   float64
	onStatus    func(context.Context, model.ProctorStatus)
	log         logger.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	detector Detector
	baseline *model.ProctorSample
	status   model.ProctorStatus
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewMonitor creates a monitor over frames using the detector from load.
func NewMonitor(frames FrameSource, load Loader, opts ...Option) *Monitor {
	m := &Monitor{
		frames:      frames,
		load:        load,
		minInterval: DefaultMinInterval,
		maxInterval: DefaultMaxInterval,
		threshold:   DefaultThreshold,
		onStatus:    func(context.Context, model.ProctorStatus) {},
		log:         logger.Named("proctor"),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // scheduling jitter only
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns the most recent status, empty before the first check.
func (m *Monitor) Status() model.ProctorStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Baseline returns a copy of the baseline sample, if captured.
func (m *Monitor) Baseline() (model.ProctorSample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseline == nil {
		return model.ProctorSample{}, false
	}
	s := *m.baseline
	s.Descriptor = append([]float64(nil), s.Descriptor...)
	return s, true
}

// NextInterval draws a delay uniformly from [min, max].
func (m *Monitor) NextInterval() time.Duration {
	span := int64(m.maxInterval - m.minInterval)
	if span <= 0 {
		return m.minInterval
	}
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return m.minInterval + time.Duration(m.rng.Int63n(span+1))
}

// Start initializes the detector in the background and then checks at
// randomized intervals until Stop or ctx is done. A detector that fails to
// load reports detector_failed and the monitor stops.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(runCtx, m.done)
}

// Stop cancels the schedule and waits for the loop to exit. The monitor can
// be started again afterwards; the detector and baseline are kept.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer func() {
		// A loop that ends on its own releases the slot for the next Start.
		m.mu.Lock()
		if m.done == done {
			m.cancel()
			m.cancel, m.done = nil, nil
		}
		m.mu.Unlock()
		close(done)
	}()

	if err := m.Init(ctx); err != nil {
		if ctx.Err() == nil {
			m.log.Warn(ctx, "face detector failed to initialize", logger.Error(err))
			m.report(ctx, model.ProctorDetectorFailed)
		}
		return
	}

	timer := time.NewTimer(m.NextInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.Check(ctx)
			timer.Reset(m.NextInterval())
		}
	}
}

// Init loads the detector once.
func (m *Monitor) Init(ctx context.Context) error {
	m.mu.Lock()
	ready := m.detector != nil
	m.mu.Unlock()
	if ready {
		return nil
	}
	if m.load == nil {
		return ErrDetectorUnavailable
	}
	d, err := m.load(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.detector = d
	m.mu.Unlock()
	m.log.Info(ctx, "face detector ready", logger.String("detector", d.Name()))
	return nil
}

// Check runs one proctoring check and reports its status.
func (m *Monitor) Check(ctx context.Context) model.ProctorStatus {
	st := m.evaluate(ctx)
	m.report(ctx, st)
	return st
}

func (m *Monitor) evaluate(ctx context.Context) model.ProctorStatus {
	m.mu.Lock()
	d := m.detector
	m.mu.Unlock()
	if d == nil {
		return model.ProctorDetectorFailed
	}

	frame, err := m.frames.Frame(ctx)
	if err != nil || frame.Image == nil {
		m.log.Debug(ctx, "frame capture failed", logger.Error(err))
		return model.ProctorCameraUnavailable
	}

	faces, err := d.Detect(ctx, frame)
	if err != nil {
		m.log.Warn(ctx, "face detection failed", logger.String("detector", d.Name()), logger.Error(err))
		return model.ProctorDetectorFailed
	}
	switch {
	case len(faces) == 0:
		return model.ProctorNoFace
	case len(faces) > 1:
		return model.ProctorMultiplePersons
	}

	desc := Descriptor(frame.Image, faces[0])
	if desc == nil {
		return model.ProctorNoFace
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseline == nil {
		m.baseline = &model.ProctorSample{Descriptor: desc, CapturedAt: time.Now()}
		return model.ProctorBaselineCaptured
	}
	if MeanAbsDiff(desc, m.baseline.Descriptor) > m.threshold {
		return model.ProctorFaceMismatch
	}
	return model.ProctorOK
}

func (m *Monitor) report(ctx context.Context, st model.ProctorStatus) {
	m.mu.Lock()
	m.status = st
	m.mu.Unlock()
	metrics.RecordProctorCheck(string(st))
	m.onStatus(ctx, st)
}
