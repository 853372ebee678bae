// Package simulate drives a complete scripted attempt against a running
// server: the same session runtime a candidate uses, with synthetic
// microphone, camera and recorder inputs.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/intervue/internal/adapters/http/api"
	"github.com/okian/intervue/internal/adapters/http/client"
	"github.com/okian/intervue/internal/adapters/mq/upload"
	"github.com/okian/intervue/internal/adapters/mq/worker"
	"github.com/okian/intervue/internal/config"
	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/internal/domain/proctor"
	"github.com/okian/intervue/internal/domain/transcription"
	"github.com/okian/intervue/internal/domain/turntaking"
	"github.com/okian/intervue/internal/session"
	"github.com/okian/intervue/pkg/logger"
)

const (
	drainTimeout = 30 * time.Second
	wordDelay    = 2 * time.Millisecond
)

// Result is what a simulated attempt produced.
type Result struct {
	Outcome session.Outcome
	// Replies holds the interviewer turns after the opener, one per answer.
	Replies []string
	// Report is nil unless the script asked for one.
	Report  *model.Report
	Elapsed time.Duration
}

// Option configures Run.
type Option func(*runner)

// WithLogger sets the simulation logger.
func WithLogger(l logger.Logger) Option {
	return func(r *runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithWordDelay sets how long the synthetic voice spends on each word.
func WithWordDelay(d time.Duration) Option {
	return func(r *runner) {
		if d >= 0 {
			r.wordDelay = d
		}
	}
}

type runner struct {
	log       logger.Logger
	wordDelay time.Duration
}

// Run plays script through one attempt of cl's invitation and ends it.
func Run(ctx context.Context, cl *client.Client, cfg config.SessionConfig, script Script, opts ...Option) (Result, error) { //nolint:gocritic // hugeParam
	r := &runner{log: logger.Named("simulate"), wordDelay: wordDelay}
	for _, opt := range opts {
		opt(r)
	}
	if len(script.Answers) == 0 {
		return Result{}, fmt.Errorf("%w: no answers", ErrInvalidScript)
	}
	begin := time.Now()

	up := upload.New(cl,
		upload.WithCapacity(cfg.UploadQueueSize),
		upload.WithLogger(r.log.Named("upload")),
		upload.WithWorkerOptions(
			worker.WithName("simulate"),
			worker.WithBackoff(cfg.UploadBaseDelay, cfg.UploadMultiplier, cfg.UploadMaxAttempts),
		),
	)

	var adapter transcription.Adapter
	if script.Relay {
		adapter = transcription.NewSegmented(microphone{}, cl,
			transcription.WithSegmentDuration(cfg.SegmentDuration),
			transcription.WithRelayLogger(r.log.Named("relay")),
		)
	}
	coord := turntaking.New(adapter, turntaking.WithLogger(r.log.Named("turns")))

	sopts := []session.Option{
		session.WithCoordinator(coord),
		session.WithSpeaker(&voice{perWord: r.wordDelay}),
		session.WithUploader(up),
		session.WithLogger(r.log.Named("session")),
	}
	if script.Chunks > 0 {
		sopts = append(sopts, session.WithMedia(&recorder{
			remaining: script.Chunks,
			size:      script.ChunkSize,
			every:     script.ChunkEvery,
		}, "camera"))
	}
	if script.Proctor {
		cam := newCamera()
		sopts = append(sopts, session.WithProctoring(cam, proctor.SelectLoader(cam, cfg.CascadePath),
			proctor.WithInterval(cfg.ProctorMinInterval, cfg.ProctorMaxInterval),
			proctor.WithThreshold(cfg.ProctorThreshold),
			proctor.WithLogger(r.log.Named("proctor")),
		))
	}

	sess := session.New(cl, sopts...)
	if err := sess.Start(ctx); err != nil {
		return Result{}, fmt.Errorf("start attempt: %w", err)
	}
	att := sess.Attempt()
	r.log.Info(ctx, "simulated attempt started",
		logger.String("attempt_id", att.ID),
		logger.Int("number", att.Number),
		logger.Int("answers", len(script.Answers)),
	)

	res := Result{}
	reason := session.ReasonEnded
	for i, answer := range script.Answers {
		if err := sleep(ctx, script.Pause); err != nil {
			reason = session.ReasonCanceled
			break
		}
		reply, err := r.answer(ctx, sess, answer)
		if err != nil {
			if errors.Is(err, session.ErrAttemptCompleted) {
				break
			}
			r.log.Warn(ctx, "answer not sent", logger.Int("turn", i+1), logger.Error(err))
			continue
		}
		res.Replies = append(res.Replies, reply)
	}

	// An attempt that already ended on its timer keeps its own reason.
	endCtx := context.WithoutCancel(ctx)
	res.Outcome = sess.End(endCtx, reason)

	drainCtx, cancel := context.WithTimeout(endCtx, drainTimeout)
	defer cancel()
	if err := sess.Wait(drainCtx); err != nil {
		r.log.Warn(ctx, "uploads not drained", logger.Int("pending", up.Pending()), logger.Error(err))
	}

	if script.Report && res.Outcome.Completed {
		req := api.ReportRequest{AttemptNumber: res.Outcome.AttemptNumber}
		if script.BypassLLM {
			bypass := true
			req.BypassLLM = &bypass
		}
		rep, err := cl.GenerateReport(endCtx, req)
		if err != nil {
			return res, fmt.Errorf("generate report: %w", err)
		}
		res.Report = &rep
	}
	res.Elapsed = time.Since(begin)
	r.log.Info(ctx, "simulated attempt finished",
		logger.String("reason", res.Outcome.Reason),
		logger.Int("turns", len(res.Outcome.Turns)),
		logger.Bool("completed", res.Outcome.Completed),
		logger.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// answer submits recognized speech when the relay produced any, otherwise
// types the scripted answer.
func (r *runner) answer(ctx context.Context, sess *session.Orchestrator, text string) (string, error) {
	if strings.TrimSpace(sess.Pending()) != "" {
		reply, err := sess.Send(ctx)
		if !errors.Is(err, session.ErrNothingToSend) {
			return reply, err
		}
	}
	return sess.SendText(ctx, text)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
