// Package report turns a finalized transcript and a weighted rubric into a
// scored report. The model is asked first; whatever it cannot deliver is
// scored by the deterministic heuristic, so Generate always produces a
// complete report for a non-empty rubric.
package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/internal/domain/scoring"
	"github.com/okian/intervue/pkg/logger"
	"github.com/okian/intervue/pkg/metrics"
)

// Completer is a black-box text completion service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Request is the input of one report generation.
type Request struct {
	AttemptID     string
	AttemptNumber int
	Interview     string // title and role, used only as prompt context
	Transcript    model.Transcript
	Rubric        []model.RubricParameter
	CEFR          bool
	BypassLLM     bool
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithCompleter sets the model used for the primary path.
func WithCompleter(c Completer) Option {
	return func(e *Engine) {
		e.llm = c
	}
}

// WithHeuristic replaces the fallback scorer.
func WithHeuristic(h *scoring.Heuristic) Option {
	return func(e *Engine) {
		if h != nil {
			e.heuristic = h
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides report id generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// Engine is the report scoring engine.
type Engine struct {
	llm       Completer
	heuristic *scoring.Heuristic
	log       logger.Logger
	now       func() time.Time
	newID     func() string
}

// NewEngine creates an Engine. Without a Completer every report is scored by
// the fallback heuristic.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		heuristic: scoring.NewHeuristic(),
		log:       logger.Named("report"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate scores req. It only fails on an empty rubric.
func (e *Engine) Generate(ctx context.Context, req Request) (model.Report, error) {
	if len(req.Rubric) == 0 {
		return model.Report{}, ErrEmptyRubric
	}
	start := e.now()
	params := scoring.ResolveParameters(req.Rubric)

	scored := make(map[string]model.ParameterScore, len(params))
	var summary string
	if !req.BypassLLM && e.llm != nil {
		summary = e.askModel(ctx, req, params, scored)
	}

	candidateText := req.Transcript.CandidateText()
	scores := make([]model.ParameterScore, 0, len(params))
	var fromModel int
	for _, p := range params {
		if s, ok := scored[p.ID]; ok {
			scores = append(scores, s)
			fromModel++
			continue
		}
		scores = append(scores, e.heuristic.Score(p, candidateText))
	}

	source := model.SourceMixed
	switch fromModel {
	case len(params):
		source = model.SourceLLM
	case 0:
		source = model.SourceFallback
	}
	if summary == "" {
		summary = fallbackSummary(req.Transcript, candidateText)
	}

	rep := model.Report{
		ID:            e.newID(),
		AttemptID:     req.AttemptID,
		AttemptNumber: req.AttemptNumber,
		Scores:        scores,
		Summary:       summary,
		Overall:       scoring.Overall(params, scores),
		Source:        source,
		CreatedAt:     e.now().UTC(),
	}

	metrics.RecordReportGenerated(string(source))
	metrics.RecordScoringLatency(float64(e.now().Sub(start).Milliseconds()))
	e.log.Info(ctx, "report generated",
		logger.String("attempt_id", req.AttemptID),
		logger.Int("attempt_number", req.AttemptNumber),
		logger.String("source", string(source)),
		logger.Float64("overall", rep.Overall),
	)
	return rep, nil
}

// askModel runs the primary request and, when needed, one follow-up scoped to
// the ids still missing. Accepted scores are written into scored.
func (e *Engine) askModel(ctx context.Context, req Request, params []model.RubricParameter, scored map[string]model.ParameterScore) string {
	ev, ok := e.complete(ctx, "report", BuildPrompt(req.Interview, params, req.Transcript, req.CEFR, nil))
	summary := ""
	if ok {
		summary = ev.Summary
		accept(params, ev, scored, nil)
	}

	missing := missingIDs(params, scored)
	if len(missing) == 0 {
		return summary
	}
	e.log.Warn(ctx, "model evaluation incomplete, asking again",
		logger.String("attempt_id", req.AttemptID),
		logger.Any("missing", missing),
	)

	followUp, ok := e.complete(ctx, "report_followup", BuildPrompt(req.Interview, params, req.Transcript, req.CEFR, missing))
	if !ok {
		return summary
	}
	want := make(map[string]bool, len(missing))
	for _, id := range missing {
		want[id] = true
	}
	accept(params, followUp, scored, want)
	if summary == "" {
		summary = followUp.Summary
	}
	return summary
}

func (e *Engine) complete(ctx context.Context, op, prompt string) (Evaluation, bool) {
	started := time.Now()
	raw, err := e.llm.Complete(ctx, prompt)
	latency := float64(time.Since(started).Milliseconds())
	if err != nil {
		metrics.RecordLLMRequest(op, "error", latency)
		e.log.Warn(ctx, "model request failed", logger.String("op", op), logger.Error(err))
		return Evaluation{}, false
	}
	ev, err := Parse(raw)
	if err != nil {
		metrics.RecordLLMRequest(op, "unparseable", latency)
		e.log.Warn(ctx, "model response unparseable", logger.String("op", op), logger.Error(err))
		return Evaluation{}, false
	}
	metrics.RecordLLMRequest(op, "ok", latency)
	return ev, true
}

// accept validates model entries against the rubric. Unknown ids and entries
// without a usable score are ignored. A CEFR band, when valid, decides the
// score. When only is non-nil, ids outside it are ignored.
func accept(params []model.RubricParameter, ev Evaluation, scored map[string]model.ParameterScore, only map[string]bool) {
	byID := make(map[string]model.RubricParameter, len(params))
	for _, p := range params {
		byID[p.ID] = p
	}
	for _, pe := range ev.Parameters {
		p, ok := byID[pe.ID]
		if !ok || (only != nil && !only[pe.ID]) {
			continue
		}
		if _, done := scored[pe.ID]; done {
			continue
		}
		band := scoring.NormalizeBand(pe.CEFR)
		score := pe.Score
		if band != "" {
			score, _ = scoring.ScoreForBand(band, p.Scale)
		}
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		scored[pe.ID] = model.ParameterScore{
			ParameterID:   p.ID,
			Score:         scoring.Snap(score, p.Scale),
			Justification: pe.Justification,
			CEFR:          band,
		}
	}
}

func missingIDs(params []model.RubricParameter, scored map[string]model.ParameterScore) []string {
	var out []string
	for _, p := range params {
		if _, ok := scored[p.ID]; !ok {
			out = append(out, p.ID)
		}
	}
	return out
}

func fallbackSummary(t model.Transcript, candidateText string) string {
	answered := 0
	pairs := t.Pairs()
	for _, p := range pairs {
		if p.Answer != "" {
			answered++
		}
	}
	return fmt.Sprintf("Automatic assessment: the candidate answered %d of %d questions using %d words.",
		answered, len(pairs), scoring.WordCount(candidateText))
}
