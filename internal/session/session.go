// Package session runs one candidate attempt on the client side. The
// Orchestrator composes the server backend, the turn-taking coordinator, the
// chunk upload queue and the proctoring monitor, and is the single writer of
// the conversation.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/okian/intervue/internal/adapters/mq/upload"
	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/internal/domain/proctor"
	"github.com/okian/intervue/internal/domain/turntaking"
	"github.com/okian/intervue/pkg/logger"
	"github.com/okian/intervue/pkg/metrics"
)

// End reasons.
const (
	ReasonEnded    = "ended"
	ReasonTimeUp   = "time_up"
	ReasonCanceled = "canceled"
)

const (
	defaultOpener     = "Hello, and thank you for joining. To begin, please introduce yourself and describe your most recent role."
	defaultReply      = "Thank you. Could you expand on that with a concrete example from your experience?"
	defaultEndTimeout = 15 * time.Second
	mediaRetryPause   = 500 * time.Millisecond
	photoQuality      = 85
)

// Backend is the server as seen by a session.
type Backend interface {
	Config(ctx context.Context) (model.InterviewConfig, error)
	SetStatus(ctx context.Context, status model.Status) (model.Attempt, error)
	Chat(ctx context.Context, history model.Transcript, message string, elapsed, remaining time.Duration) (string, error)
	SaveTranscript(ctx context.Context, attemptID string, t model.Transcript) error
	ProctorStatus(ctx context.Context, attemptID string, status model.ProctorStatus) error
	ProctorPhoto(ctx context.Context, attemptID string, photo []byte, ext string) (bool, error)
}

// Speaker voices interviewer turns. Speak blocks until playback ends, fails
// or ctx is cancelled.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// MediaSource yields recorded media chunks. Next blocks until one is ready
// and returns io.EOF when recording stopped.
type MediaSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// Outcome summarizes an ended attempt.
type Outcome struct {
	AttemptID       string
	AttemptNumber   int
	Reason          string
	Turns           model.Transcript
	ProctorStatus   model.ProctorStatus
	PendingUploads  int
	TranscriptSaved bool
	Completed       bool
	EndedAt         time.Time
}

// Orchestrator drives one attempt from Start to End.
type Orchestrator struct {
	backend  Backend
	coord    *turntaking.Coordinator
	speaker  Speaker
	uploader *upload.Uploader
	media    MediaSource
	mediaTag string

	frames      proctor.FrameSource
	loader      proctor.Loader
	proctorOpts []proctor.Option
	monitor     *proctor.Monitor

	fallbackOpener string
	fallbackReply  string
	endTimeout     time.Duration
	now            func() time.Time
	log            logger.Logger

	sendMu sync.Mutex // serializes conversational turns

	mu            sync.Mutex
	started       bool
	ended         bool
	cfg           model.InterviewConfig
	attempt       model.Attempt
	turns         model.Transcript
	startedAt     time.Time
	timer         *time.Timer
	runCtx        context.Context
	cancel        context.CancelFunc
	lastForwarded model.ProctorStatus

	speaking sync.WaitGroup
	workers  sync.WaitGroup

	endOnce sync.Once
	outcome Outcome
}

// New creates an orchestrator over backend.
func New(backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:        backend,
		mediaTag:       "interview",
		fallbackOpener: defaultOpener,
		fallbackReply:  defaultReply,
		endTimeout:     defaultEndTimeout,
		now:            time.Now,
		log:            logger.Named("session"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.coord == nil {
		o.coord = turntaking.New(nil, turntaking.WithLogger(o.log))
	}
	return o
}

// Start reads the attempt configuration, opens the attempt and asks the
// opening question. It fails with ErrAttemptsExhausted when no attempt is
// left; every other component failure after the attempt opened only
// degrades the session.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.started = true
	o.mu.Unlock()

	cfg, err := o.backend.Config(ctx)
	if err != nil {
		return fmt.Errorf("read attempt config: %w", err)
	}
	if cfg.Exhausted() {
		o.log.Info(ctx, "no attempts left",
			logger.Int("allowed", cfg.AllowedAttempts),
			logger.Int("used", cfg.UsedAttempts),
		)
		return ErrAttemptsExhausted
	}

	a, err := o.backend.SetStatus(ctx, model.StatusInProgress)
	if err != nil {
		if errors.Is(err, model.ErrAttemptsExhausted) {
			return ErrAttemptsExhausted
		}
		return fmt.Errorf("open attempt: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	if o.ended {
		o.mu.Unlock()
		cancel()
		return ErrAttemptCompleted
	}
	o.cfg = cfg
	o.attempt = a
	o.startedAt = o.now()
	o.runCtx, o.cancel = runCtx, cancel
	if cfg.Duration > 0 {
		o.timer = time.AfterFunc(cfg.Duration, func() {
			o.End(context.WithoutCancel(runCtx), ReasonTimeUp)
		})
	}
	pumpMedia := o.uploader != nil && o.media != nil
	if pumpMedia {
		o.workers.Add(1)
	}
	if o.frames != nil {
		o.monitor = proctor.NewMonitor(o.frames, o.loader,
			append(o.proctorOpts, proctor.WithStatusHandler(o.forwardProctorStatus))...)
		o.workers.Add(1)
	}
	monitor := o.monitor
	o.mu.Unlock()

	o.log.Info(ctx, "attempt started",
		logger.String("attempt_id", a.ID),
		logger.Int("number", a.Number),
		logger.Duration("duration", cfg.Duration),
	)

	if o.uploader != nil {
		// Delivery outlives the session context so End never aborts it.
		o.uploader.Start(context.WithoutCancel(ctx))
	}
	if pumpMedia {
		go o.pump(runCtx)
	}
	if monitor != nil {
		monitor.Start(runCtx)
		go o.capturePhoto(runCtx)
	}

	opening := o.openingQuestion(ctx, cfg)
	if !o.appendTurn(model.RoleAssistant, opening) {
		return nil
	}
	o.say(runCtx, opening)
	if err := o.coord.StartListening(runCtx); err != nil {
		o.log.Warn(ctx, "speech recognition unavailable; typed answers only", logger.Error(err))
	}
	return nil
}

func (o *Orchestrator) openingQuestion(ctx context.Context, cfg model.InterviewConfig) string { //nolint:gocritic // hugeParam
	reply, err := o.backend.Chat(ctx, nil, "", 0, cfg.Duration)
	if err == nil && strings.TrimSpace(reply) != "" {
		return strings.TrimSpace(reply)
	}
	o.log.Warn(ctx, "opening question unavailable; using fallback", logger.Error(err))
	metrics.RecordErrorByComponent("session", "opening_fallback")
	if s := strings.TrimSpace(cfg.Opening); s != "" {
		return s
	}
	return o.fallbackOpener
}

// Send submits the pending recognized text as the candidate's answer.
func (o *Orchestrator) Send(ctx context.Context) (string, error) {
	if err := o.checkOpen(); err != nil {
		return "", err
	}
	text := o.coord.Pending().Take()
	if strings.TrimSpace(text) == "" {
		return "", ErrNothingToSend
	}
	return o.SendText(ctx, text)
}

// SendText submits a typed answer and returns the interviewer's reply. A
// failed chat turn is answered locally so the interview never stalls.
func (o *Orchestrator) SendText(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNothingToSend
	}

	o.sendMu.Lock()
	defer o.sendMu.Unlock()

	o.mu.Lock()
	if err := o.checkOpenLocked(); err != nil {
		o.mu.Unlock()
		return "", err
	}
	history := append(model.Transcript(nil), o.turns...)
	o.turns = append(o.turns, model.TranscriptTurn{Role: model.RoleUser, Text: text, At: o.now().UTC()})
	elapsed, remaining := o.timingLocked()
	o.mu.Unlock()

	reply, err := o.backend.Chat(ctx, history, text, elapsed, remaining)
	reply = strings.TrimSpace(reply)
	if err != nil || reply == "" {
		o.log.Warn(ctx, "chat turn failed; using fallback reply", logger.Error(err))
		metrics.RecordErrorByComponent("session", "chat_fallback")
		reply = o.fallbackReply
	}

	if !o.appendTurn(model.RoleAssistant, reply) {
		return "", ErrAttemptCompleted
	}
	o.mu.Lock()
	runCtx := o.runContextLocked()
	o.mu.Unlock()
	o.say(runCtx, reply)
	return reply, nil
}

// Record enqueues one media chunk for upload. It never blocks on the network.
func (o *Orchestrator) Record(ctx context.Context, payload []byte, source string) error {
	if o.uploader == nil {
		return ErrNoUploader
	}
	o.mu.Lock()
	id := o.attempt.ID
	o.mu.Unlock()
	if id == "" {
		return ErrNotStarted
	}
	if source == "" {
		source = o.mediaTag
	}
	return o.uploader.Enqueue(ctx, model.MediaChunk{
		AttemptID:  id,
		Payload:    payload,
		CapturedAt: o.now().UTC(),
		Source:     source,
	})
}

// Mute stops listening until Unmute.
func (o *Orchestrator) Mute(ctx context.Context) error { return o.coord.Mute(ctx) }

// Unmute resumes listening, after playback when the interviewer is speaking.
func (o *Orchestrator) Unmute(ctx context.Context) error { return o.coord.Unmute(ctx) }

// Pending returns the recognized text not yet sent.
func (o *Orchestrator) Pending() string { return o.coord.Pending().Text() }

// ProctorStatus returns the latest advisory proctoring label.
func (o *Orchestrator) ProctorStatus() model.ProctorStatus {
	o.mu.Lock()
	m := o.monitor
	o.mu.Unlock()
	if m == nil {
		return ""
	}
	return m.Status()
}

// Turns returns a copy of the conversation so far.
func (o *Orchestrator) Turns() model.Transcript {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append(model.Transcript(nil), o.turns...)
}

// Attempt returns the attempt opened by Start.
func (o *Orchestrator) Attempt() model.Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempt
}

// Remaining returns the time left on the interview clock.
func (o *Orchestrator) Remaining() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, r := o.timingLocked()
	return r
}

// End finishes the attempt once, whether called explicitly or by the clock.
// Recognition and proctoring stop, the upload queue stops taking chunks
// while queued ones finish, and the transcript and COMPLETED status are
// posted best-effort. Later calls return the same Outcome.
func (o *Orchestrator) End(ctx context.Context, reason string) Outcome {
	o.endOnce.Do(func() {
		o.outcome = o.end(ctx, reason)
	})
	return o.outcome
}

func (o *Orchestrator) end(ctx context.Context, reason string) Outcome {
	if reason == "" {
		reason = ReasonEnded
	}
	o.mu.Lock()
	o.ended = true
	if o.timer != nil {
		o.timer.Stop()
	}
	cancel := o.cancel
	monitor := o.monitor
	a := o.attempt
	turns := append(model.Transcript(nil), o.turns...)
	o.mu.Unlock()

	o.coord.End(ctx)
	if cancel != nil {
		cancel()
	}
	if monitor != nil {
		monitor.Stop()
	}
	if o.uploader != nil {
		o.uploader.Disable()
	}
	o.speaking.Wait()
	o.workers.Wait()

	out := Outcome{
		AttemptID:     a.ID,
		AttemptNumber: a.Number,
		Reason:        reason,
		Turns:         turns,
		ProctorStatus: o.ProctorStatus(),
		EndedAt:       o.now().UTC(),
	}
	if o.uploader != nil {
		out.PendingUploads = o.uploader.Pending()
	}
	if a.ID == "" {
		return out
	}

	postCtx, done := context.WithTimeout(context.WithoutCancel(ctx), o.endTimeout)
	defer done()
	if err := o.backend.SaveTranscript(postCtx, a.ID, turns); err != nil {
		o.log.Warn(ctx, "saving transcript failed", logger.String("attempt_id", a.ID), logger.Error(err))
		metrics.RecordErrorByComponent("session", "transcript_post")
	} else {
		out.TranscriptSaved = true
	}
	if _, err := o.backend.SetStatus(postCtx, model.StatusCompleted); err != nil {
		o.log.Warn(ctx, "completing attempt failed", logger.String("attempt_id", a.ID), logger.Error(err))
		metrics.RecordErrorByComponent("session", "status_post")
	} else {
		out.Completed = true
	}

	o.log.Info(ctx, "attempt ended",
		logger.String("attempt_id", a.ID),
		logger.String("reason", reason),
		logger.Int("turns", len(turns)),
		logger.Int("pending_uploads", out.PendingUploads),
	)
	return out
}

// Wait blocks until every accepted chunk was delivered or dropped.
func (o *Orchestrator) Wait(ctx context.Context) error {
	if o.uploader == nil {
		return nil
	}
	return o.uploader.Drain(ctx)
}

func (o *Orchestrator) checkOpen() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checkOpenLocked()
}

func (o *Orchestrator) checkOpenLocked() error {
	switch {
	case o.ended:
		return ErrAttemptCompleted
	case o.attempt.ID == "":
		return ErrNotStarted
	}
	return nil
}

func (o *Orchestrator) appendTurn(role model.Role, text string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ended {
		return false
	}
	o.turns = append(o.turns, model.TranscriptTurn{Role: role, Text: text, At: o.now().UTC()})
	return true
}

func (o *Orchestrator) timingLocked() (elapsed, remaining time.Duration) {
	if o.startedAt.IsZero() {
		return 0, o.cfg.Duration
	}
	elapsed = o.now().Sub(o.startedAt)
	if o.cfg.Duration > 0 && elapsed < o.cfg.Duration {
		remaining = o.cfg.Duration - elapsed
	}
	return elapsed, remaining
}

// runContextLocked returns a context cancelled by End.
func (o *Orchestrator) runContextLocked() context.Context {
	if o.cancel == nil || o.ended {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return o.runCtx
}

// say voices text. The coordinator enters BOT_SPEAKING before say returns so
// no recognized text slips in while playback starts.
func (o *Orchestrator) say(ctx context.Context, text string) {
	if o.speaker == nil || text == "" || ctx.Err() != nil {
		return
	}
	o.mu.Lock()
	if o.ended {
		o.mu.Unlock()
		return
	}
	o.speaking.Add(1)
	o.mu.Unlock()

	token, err := o.coord.BotSpeechStarted(ctx)
	if err != nil {
		o.speaking.Done()
		o.log.Debug(ctx, "speech not started", logger.Error(err))
		return
	}
	go func() {
		defer o.speaking.Done()
		reason := "ended"
		if err := o.speaker.Speak(ctx, text); err != nil {
			reason = "error"
			if ctx.Err() != nil {
				reason = "cancelled"
			}
		}
		o.coord.BotSpeechEnded(context.WithoutCancel(ctx), token, reason)
	}()
}

func (o *Orchestrator) pump(ctx context.Context) {
	defer o.workers.Done()
	for {
		data, err := o.media.Next(ctx)
		switch {
		case ctx.Err() != nil, errors.Is(err, io.EOF):
			return
		case err != nil:
			o.log.Warn(ctx, "media capture failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(mediaRetryPause):
			}
			continue
		}
		if len(data) == 0 {
			continue
		}
		if err := o.Record(ctx, data, o.mediaTag); err != nil {
			if errors.Is(err, upload.ErrDisabled) {
				return
			}
			o.log.Warn(ctx, "chunk not queued", logger.Error(err))
		}
	}
}

func (o *Orchestrator) capturePhoto(ctx context.Context) {
	defer o.workers.Done()
	frame, err := o.frames.Frame(ctx)
	if err != nil || frame.Image == nil {
		o.log.Info(ctx, "proctor photo skipped", logger.Error(err))
		return
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: photoQuality}); err != nil {
		o.log.Warn(ctx, "proctor photo encoding failed", logger.Error(err))
		return
	}
	o.mu.Lock()
	id := o.attempt.ID
	o.mu.Unlock()
	if _, err := o.backend.ProctorPhoto(ctx, id, buf.Bytes(), "jpg"); err != nil {
		o.log.Warn(ctx, "proctor photo upload failed", logger.Error(err))
	}
}

// forwardProctorStatus sends label changes to the server. It runs on the
// monitor goroutine and never blocks the schedule for long.
func (o *Orchestrator) forwardProctorStatus(ctx context.Context, st model.ProctorStatus) {
	o.mu.Lock()
	if st == o.lastForwarded || o.ended {
		o.mu.Unlock()
		return
	}
	o.lastForwarded = st
	id := o.attempt.ID
	o.mu.Unlock()

	if st != model.ProctorOK && st != model.ProctorBaselineCaptured {
		o.log.Info(ctx, "proctoring flag", logger.String("attempt_id", id), logger.String("status", string(st)))
	}
	postCtx, cancel := context.WithTimeout(ctx, o.endTimeout)
	defer cancel()
	if err := o.backend.ProctorStatus(postCtx, id, st); err != nil {
		o.log.Warn(ctx, "forwarding proctor status failed", logger.Error(err))
	}
}
