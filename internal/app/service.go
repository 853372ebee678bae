// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/intervue/internal/adapters/asr"
	"github.com/okian/intervue/internal/adapters/blob"
	"github.com/okian/intervue/internal/adapters/catalog"
	"github.com/okian/intervue/internal/adapters/repository"
	"github.com/okian/intervue/internal/domain/dedupe"
	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/internal/domain/report"
	"github.com/okian/intervue/internal/domain/scoring"
	"github.com/okian/intervue/pkg/logger"
	"github.com/okian/intervue/pkg/metrics"
)

const closingWindow = 2 * time.Minute

//go:embed interviewer.md
var interviewerTemplate string

// Replier produces the interviewer's next turn.
type Replier interface {
	Reply(ctx context.Context, system, prompt string) (string, error)
}

// Transcriber turns an audio segment into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (asr.Response, error)
}

// ChatRequest is one conversational step. An empty history and message ask
// for the opening question.
type ChatRequest struct {
	History   model.Transcript
	Message   string
	Elapsed   time.Duration
	Remaining time.Duration
}

// ChatReply is the interviewer's answer to a ChatRequest.
type ChatReply struct {
	AttemptID string
	Reply     string
}

// ChunkUpload is one received media chunk.
type ChunkUpload struct {
	AttemptID  string
	Sequence   int64
	CapturedAt time.Time
	Source     string
	Data       []byte
}

// ReportRequest selects and optionally overrides the inputs of a report.
type ReportRequest struct {
	AttemptNumber int // 0 selects the latest attempt
	Transcript    model.Transcript
	Rubric        []model.RubricParameter
	Regenerate    bool
	BypassLLM     *bool
}

// Service implements the API dependencies of the interview platform.
type Service struct {
	mu sync.Mutex

	store       repository.Store
	catalog     *catalog.Catalog
	blobs       *blob.Store
	engine      *report.Engine
	replier     Replier
	transcriber Transcriber
	deduper     dedupe.Deduper

	dedupeSize int
	bypassLLM  bool

	started bool
	now     func() time.Time
	newID   func() string

	logger logger.Logger
}

// New constructs a new Service. Unset collaborators default to an in-memory
// store, an empty catalog and a heuristic-only report engine.
func New(opts ...Option) *Service {
	s := &Service{
		dedupeSize: 100_000,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.catalog == nil {
		s.catalog, _ = catalog.Parse(nil)
	}
	if s.engine == nil {
		s.engine = report.NewEngine()
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}
	return s
}

// Start marks the service ready.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.started = true
	s.logger.Info(ctx, "interview service started",
		logger.Bool("llm", s.replier != nil),
		logger.Bool("transcription", s.transcriber != nil),
		logger.Bool("blobs", s.blobs != nil),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop releases the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "interview service stopped")
}

func (s *Service) resolve(token string) (catalog.Invitation, catalog.Interview, error) {
	inv, err := s.catalog.Invitation(token)
	if err != nil {
		return catalog.Invitation{}, catalog.Interview{}, ErrUnknownToken
	}
	iv, err := s.catalog.Interview(inv.InterviewID)
	if err != nil {
		return catalog.Invitation{}, catalog.Interview{}, ErrUnknownToken
	}
	return inv, iv, nil
}

// usedAttempts counts completed attempts that produced a conversation.
func (s *Service) usedAttempts(ctx context.Context, inv catalog.Invitation) (int, error) {
	all, err := s.store.Attempts(ctx, inv.InterviewID, inv.CandidateID)
	if err != nil {
		return 0, err
	}
	used := 0
	for _, a := range all {
		if !a.Completed() {
			continue
		}
		t, err := s.store.Transcript(ctx, a.ID)
		if err != nil {
			return 0, err
		}
		if t.HasContent() {
			used++
		}
	}
	return used, nil
}

// AttemptConfig returns what a session needs to start.
func (s *Service) AttemptConfig(ctx context.Context, token string) (model.InterviewConfig, error) {
	inv, iv, err := s.resolve(token)
	if err != nil {
		return model.InterviewConfig{}, err
	}
	used, err := s.usedAttempts(ctx, inv)
	if err != nil {
		return model.InterviewConfig{}, fmt.Errorf("count attempts: %w", err)
	}
	return iv.Config(used), nil
}

// SetStatus starts or resumes an attempt (IN_PROGRESS) or finalizes the
// current one (COMPLETED).
func (s *Service) SetStatus(ctx context.Context, token string, status model.Status) (model.Attempt, error) {
	inv, iv, err := s.resolve(token)
	if err != nil {
		return model.Attempt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch status {
	case model.StatusInProgress:
		return s.startAttempt(ctx, inv, iv)
	case model.StatusCompleted:
		return s.completeAttempt(ctx, inv)
	}
	return model.Attempt{}, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
}

func (s *Service) startAttempt(ctx context.Context, inv catalog.Invitation, iv catalog.Interview) (model.Attempt, error) {
	latest, err := s.store.LatestAttempt(ctx, iv.ID, inv.CandidateID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.createAttempt(ctx, inv, iv, 1)
	}
	if err != nil {
		return model.Attempt{}, err
	}

	if !latest.Completed() {
		if latest.Status != model.StatusInProgress {
			latest.Status = model.StatusInProgress
			latest.StartedAt = s.now().UTC()
			if err := s.store.UpdateAttempt(ctx, latest); err != nil {
				return model.Attempt{}, err
			}
		}
		s.logger.Info(ctx, "attempt resumed", logger.String("attempt_id", latest.ID), logger.Int("number", latest.Number))
		return latest, nil
	}

	t, err := s.store.Transcript(ctx, latest.ID)
	if err != nil {
		return model.Attempt{}, err
	}
	if !t.HasContent() {
		// An attempt without conversation does not consume the allowance.
		if err := s.store.DeleteReport(ctx, latest.ID, latest.Number); err != nil {
			return model.Attempt{}, err
		}
		latest.Status = model.StatusInProgress
		latest.StartedAt = s.now().UTC()
		latest.CompletedAt = time.Time{}
		latest.ProctorStatus = ""
		if err := s.store.UpdateAttempt(ctx, latest); err != nil {
			return model.Attempt{}, err
		}
		s.logger.Info(ctx, "empty attempt reopened", logger.String("attempt_id", latest.ID), logger.Int("number", latest.Number))
		return latest, nil
	}

	used, err := s.usedAttempts(ctx, inv)
	if err != nil {
		return model.Attempt{}, err
	}
	if used >= iv.AllowedAttempts {
		metrics.RecordAttemptsExhausted()
		s.logger.Info(ctx, "attempts exhausted",
			logger.String("interview_id", iv.ID),
			logger.String("candidate_id", inv.CandidateID),
			logger.Int("allowed", iv.AllowedAttempts),
		)
		return model.Attempt{}, ErrAttemptsExhausted
	}
	return s.createAttempt(ctx, inv, iv, latest.Number+1)
}

func (s *Service) createAttempt(ctx context.Context, inv catalog.Invitation, iv catalog.Interview, number int) (model.Attempt, error) {
	a := model.Attempt{
		ID:              s.newID(),
		InterviewID:     iv.ID,
		CandidateID:     inv.CandidateID,
		Number:          number,
		Status:          model.StatusInProgress,
		StartedAt:       s.now().UTC(),
		AllowedAttempts: iv.AllowedAttempts,
	}
	if err := s.store.CreateAttempt(ctx, a); err != nil {
		return model.Attempt{}, fmt.Errorf("create attempt: %w", err)
	}
	metrics.RecordSessionStarted()
	s.logger.Info(ctx, "attempt started",
		logger.String("attempt_id", a.ID),
		logger.String("interview_id", a.InterviewID),
		logger.Int("number", a.Number),
	)
	return a, nil
}

func (s *Service) completeAttempt(ctx context.Context, inv catalog.Invitation) (model.Attempt, error) {
	a, err := s.latest(ctx, inv)
	if err != nil {
		return model.Attempt{}, err
	}
	if a.Completed() {
		return a, nil
	}
	a.Status = model.StatusCompleted
	a.CompletedAt = s.now().UTC()
	if err := s.store.UpdateAttempt(ctx, a); err != nil {
		return model.Attempt{}, err
	}
	metrics.RecordSessionEnded("completed")
	s.logger.Info(ctx, "attempt completed", logger.String("attempt_id", a.ID), logger.Int("number", a.Number))
	return a, nil
}

func (s *Service) latest(ctx context.Context, inv catalog.Invitation) (model.Attempt, error) {
	a, err := s.store.LatestAttempt(ctx, inv.InterviewID, inv.CandidateID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Attempt{}, ErrAttemptNotStarted
	}
	return a, err
}

// attempt returns the attempt named by id, or the latest one when id is
// empty. The attempt must belong to the invitation.
func (s *Service) attempt(ctx context.Context, inv catalog.Invitation, id string) (model.Attempt, error) {
	if id == "" {
		return s.latest(ctx, inv)
	}
	a, err := s.store.Attempt(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && (a.InterviewID != inv.InterviewID || a.CandidateID != inv.CandidateID)) {
		return model.Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return a, err
}

// Chat appends the candidate message and returns the interviewer's reply.
func (s *Service) Chat(ctx context.Context, token string, req ChatRequest) (ChatReply, error) {
	inv, iv, err := s.resolve(token)
	if err != nil {
		return ChatReply{}, err
	}
	a, err := s.latest(ctx, inv)
	if err != nil {
		return ChatReply{}, err
	}
	if a.Completed() {
		return ChatReply{}, ErrAttemptCompleted
	}

	history := append(model.Transcript(nil), req.History...)
	if msg := strings.TrimSpace(req.Message); msg != "" {
		history = append(history, model.TranscriptTurn{Role: model.RoleUser, Text: msg, At: s.now().UTC()})
	}

	var reply string
	switch {
	case len(history) == 0 && strings.TrimSpace(iv.Opening) != "":
		reply = strings.TrimSpace(iv.Opening)
	case s.replier == nil:
		return ChatReply{}, ErrLLMUnavailable
	default:
		reply, err = s.replier.Reply(ctx, interviewerInstruction(iv, req), conversationPrompt(history))
		if err != nil {
			s.logger.Warn(ctx, "interviewer reply failed", logger.String("attempt_id", a.ID), logger.Error(err))
			return ChatReply{}, fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
		}
	}

	history = append(history, model.TranscriptTurn{Role: model.RoleAssistant, Text: reply, At: s.now().UTC()})
	s.mu.Lock()
	if err := s.saveTranscriptLocked(ctx, a.ID, history); err != nil {
		s.logger.Warn(ctx, "saving chat transcript failed", logger.String("attempt_id", a.ID), logger.Error(err))
	}
	s.mu.Unlock()

	metrics.RecordChatTurn()
	return ChatReply{AttemptID: a.ID, Reply: reply}, nil
}

func interviewerInstruction(iv catalog.Interview, req ChatRequest) string {
	var timing string
	switch {
	case req.Remaining > 0 && req.Remaining <= closingWindow:
		timing = "- Less than two minutes remain: ask a final closing question."
	case req.Elapsed > 0:
		timing = fmt.Sprintf("- Time elapsed so far: %s.", req.Elapsed.Round(time.Second))
	}
	lang := iv.Language
	if lang == "" {
		lang = "English"
	}
	r := strings.NewReplacer(
		"{{TITLE}}", iv.Title,
		"{{ROLE}}", iv.Role,
		"{{LANGUAGE}}", lang,
		"{{DESCRIPTION}}", iv.Description,
		"{{TIMING}}", timing,
	)
	return strings.TrimSpace(r.Replace(interviewerTemplate))
}

func conversationPrompt(history model.Transcript) string {
	if len(history) == 0 {
		return "Start the interview with a short greeting and the first question."
	}
	var b strings.Builder
	for _, t := range history {
		switch t.Role {
		case model.RoleAssistant:
			b.WriteString("Interviewer: ")
		default:
			b.WriteString("Candidate: ")
		}
		b.WriteString(strings.TrimSpace(t.Text))
		b.WriteString("\n")
	}
	b.WriteString("Interviewer:")
	return b.String()
}

// StoreChunk persists a media chunk once. A repeated delivery of a stored
// chunk is acknowledged as a duplicate.
func (s *Service) StoreChunk(ctx context.Context, token string, up ChunkUpload) (bool, error) { //nolint:gocritic // hugeParam
	if up.Sequence < 1 || len(up.Data) == 0 {
		return false, fmt.Errorf("%w: chunk needs a positive sequence and data", ErrInvalidInput)
	}
	if s.blobs == nil {
		return false, fmt.Errorf("%w: blob storage not configured", ErrNotFound)
	}
	inv, _, err := s.resolve(token)
	if err != nil {
		return false, err
	}
	a, err := s.attempt(ctx, inv, up.AttemptID)
	if err != nil {
		return false, err
	}

	key := dedupe.ChunkKey(a.ID, up.Sequence)
	path := blob.ChunkKey(a.ID, up.Sequence, up.Source)
	if s.deduper.SeenAndRecord(ctx, key) || s.blobs.Exists(ctx, path) {
		s.logger.Debug(ctx, "duplicate chunk", logger.String("attempt_id", a.ID), logger.Int64("sequence", up.Sequence))
		return true, nil
	}
	captured := up.CapturedAt
	if captured.IsZero() {
		captured = s.now()
	}
	meta := blob.ChunkMeta{AttemptID: a.ID, Sequence: up.Sequence, Source: up.Source, CapturedAt: captured.UTC()}
	if _, err := s.blobs.PutChunk(ctx, meta, up.Data); err != nil {
		s.deduper.Unrecord(ctx, key)
		metrics.RecordErrorByComponent("service", "chunk_store")
		return false, fmt.Errorf("store chunk: %w", err)
	}
	return false, nil
}

// SaveTranscript replaces the transcript of an attempt that is still open.
func (s *Service) SaveTranscript(ctx context.Context, token, attemptID string, t model.Transcript) error {
	inv, _, err := s.resolve(token)
	if err != nil {
		return err
	}
	for i, turn := range t {
		if turn.Role != model.RoleUser && turn.Role != model.RoleAssistant {
			return fmt.Errorf("%w: turn %d has role %q", ErrInvalidInput, i, turn.Role)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.attempt(ctx, inv, attemptID)
	if err != nil {
		return err
	}
	if a.Completed() {
		return ErrAttemptCompleted
	}
	return s.saveTranscriptLocked(ctx, a.ID, t)
}

func (s *Service) saveTranscriptLocked(ctx context.Context, attemptID string, t model.Transcript) error {
	a, err := s.store.Attempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.Completed() {
		return ErrAttemptCompleted
	}
	return s.store.SaveTranscript(ctx, attemptID, t)
}

// SaveProctorPhoto stores the one-time identity photo of an attempt. It
// reports false when a photo was already stored.
func (s *Service) SaveProctorPhoto(ctx context.Context, token, attemptID string, data []byte, ext string) (bool, error) {
	if len(data) == 0 {
		return false, fmt.Errorf("%w: empty photo", ErrInvalidInput)
	}
	if s.blobs == nil {
		return false, fmt.Errorf("%w: blob storage not configured", ErrNotFound)
	}
	inv, _, err := s.resolve(token)
	if err != nil {
		return false, err
	}
	a, err := s.attempt(ctx, inv, attemptID)
	if err != nil {
		return false, err
	}
	key := blob.PhotoKey(a.ID, ext)
	if s.blobs.Exists(ctx, key) {
		return false, nil
	}
	if _, err := s.blobs.Put(ctx, key, data); err != nil {
		return false, fmt.Errorf("store proctor photo: %w", err)
	}
	return true, nil
}

// SetProctorStatus records the latest advisory proctoring label.
func (s *Service) SetProctorStatus(ctx context.Context, token, attemptID, status string) error {
	ps := model.ProctorStatus(strings.TrimSpace(status))
	if !ps.Valid() {
		return fmt.Errorf("%w: proctor status %q", ErrInvalidInput, status)
	}
	inv, _, err := s.resolve(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.attempt(ctx, inv, attemptID)
	if err != nil {
		return err
	}
	a.ProctorStatus = ps
	return s.store.UpdateAttempt(ctx, a)
}

func (s *Service) attemptByNumber(ctx context.Context, inv catalog.Invitation, number int) (model.Attempt, error) {
	if number <= 0 {
		return s.latest(ctx, inv)
	}
	all, err := s.store.Attempts(ctx, inv.InterviewID, inv.CandidateID)
	if err != nil {
		return model.Attempt{}, err
	}
	for _, a := range all {
		if a.Number == number {
			return a, nil
		}
	}
	return model.Attempt{}, fmt.Errorf("attempt number %d: %w", number, ErrNotFound)
}

// GenerateReport returns the report of a completed attempt, creating it on
// first request. Regenerate replaces a stored report.
func (s *Service) GenerateReport(ctx context.Context, token string, req ReportRequest) (model.Report, error) {
	inv, iv, err := s.resolve(token)
	if err != nil {
		return model.Report{}, err
	}
	a, err := s.attemptByNumber(ctx, inv, req.AttemptNumber)
	if err != nil {
		return model.Report{}, err
	}
	if !a.Completed() {
		return model.Report{}, ErrAttemptNotCompleted
	}

	if req.Regenerate {
		if err := s.store.DeleteReport(ctx, a.ID, a.Number); err != nil {
			return model.Report{}, fmt.Errorf("delete report: %w", err)
		}
	} else if existing, err := s.store.Report(ctx, a.ID, a.Number); err == nil {
		return existing, nil
	}

	transcript := req.Transcript
	if len(transcript) == 0 {
		if transcript, err = s.store.Transcript(ctx, a.ID); err != nil {
			return model.Report{}, err
		}
	}
	rubric := req.Rubric
	if len(rubric) == 0 {
		rubric = iv.Rubric
	}
	if len(rubric) == 0 {
		return model.Report{}, fmt.Errorf("%w: interview %s has no rubric", ErrInvalidInput, iv.ID)
	}
	bypass := s.bypassLLM
	if req.BypassLLM != nil {
		bypass = *req.BypassLLM
	}

	rep, err := s.engine.Generate(ctx, report.Request{
		AttemptID:     a.ID,
		AttemptNumber: a.Number,
		Interview:     strings.TrimSpace(iv.Title + " " + iv.Role),
		Transcript:    transcript,
		Rubric:        rubric,
		CEFR:          iv.CEFR,
		BypassLLM:     bypass,
	})
	if err != nil {
		return model.Report{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.store.CreateReport(ctx, rep); err != nil {
		if errors.Is(err, repository.ErrReportExists) {
			return s.store.Report(ctx, a.ID, a.Number)
		}
		return model.Report{}, fmt.Errorf("save report: %w", err)
	}
	return rep, nil
}

// Report fetches a stored report.
func (s *Service) Report(ctx context.Context, token string, number int) (model.Report, error) {
	inv, _, err := s.resolve(token)
	if err != nil {
		return model.Report{}, err
	}
	a, err := s.attemptByNumber(ctx, inv, number)
	if err != nil {
		return model.Report{}, err
	}
	rep, err := s.store.Report(ctx, a.ID, a.Number)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Report{}, fmt.Errorf("report: %w", ErrNotFound)
	}
	return rep, err
}

// Rubric returns an interview's rubric with normalized weights and scales.
func (s *Service) Rubric(_ context.Context, interviewID string) ([]model.RubricParameter, error) {
	r, err := s.catalog.Rubric(interviewID)
	if err != nil {
		return nil, fmt.Errorf("interview %s: %w", interviewID, ErrNotFound)
	}
	return scoring.ResolveParameters(r), nil
}

// Transcribe forwards an audio segment to the speech backend.
func (s *Service) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if s.transcriber == nil {
		return "", ErrTranscriptionUnavailable
	}
	resp, err := s.transcriber.Transcribe(ctx, filename, audio)
	switch {
	case errors.Is(err, asr.ErrNotConfigured):
		return "", ErrTranscriptionUnavailable
	case err != nil:
		s.logger.Warn(ctx, "relay transcription failed", logger.Error(err))
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	return resp.Transcript(), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"started":       s.started,
		"llm":           s.replier != nil,
		"transcription": s.transcriber != nil,
		"blobs":         s.blobs != nil,
		"dedupeSize":    s.dedupeSize,
		"dedupeEntries": s.deduper.Size(),
	}
}
