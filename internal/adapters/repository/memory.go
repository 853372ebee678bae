package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/pkg/metrics"
)

type reportKey struct {
	attemptID string
	number    int
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	attempts    map[string]model.Attempt
	transcripts map[string]model.Transcript
	reports     map[reportKey]model.Report
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts:    make(map[string]model.Attempt),
		transcripts: make(map[string]model.Transcript),
		reports:     make(map[reportKey]model.Report),
	}
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Milliseconds()))
}

func (s *MemoryStore) CreateAttempt(_ context.Context, a model.Attempt) error { //nolint:gocritic // hugeParam: attempts are stored by value
	defer observe("create_attempt", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[a.ID]; ok {
		return fmt.Errorf("attempt %s: %w", a.ID, ErrConflict)
	}
	for _, other := range s.attempts {
		if other.InterviewID == a.InterviewID && other.CandidateID == a.CandidateID && other.Number == a.Number {
			return fmt.Errorf("attempt number %d: %w", a.Number, ErrConflict)
		}
	}
	s.attempts[a.ID] = a
	return nil
}

func (s *MemoryStore) UpdateAttempt(_ context.Context, a model.Attempt) error { //nolint:gocritic // hugeParam: attempts are stored by value
	defer observe("update_attempt", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[a.ID]; !ok {
		return fmt.Errorf("attempt %s: %w", a.ID, ErrNotFound)
	}
	s.attempts[a.ID] = a
	return nil
}

func (s *MemoryStore) Attempt(_ context.Context, id string) (model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return model.Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return a, nil
}

func (s *MemoryStore) LatestAttempt(ctx context.Context, interviewID, candidateID string) (model.Attempt, error) {
	all, _ := s.Attempts(ctx, interviewID, candidateID)
	if len(all) == 0 {
		return model.Attempt{}, fmt.Errorf("latest attempt: %w", ErrNotFound)
	}
	return all[len(all)-1], nil
}

func (s *MemoryStore) Attempts(_ context.Context, interviewID, candidateID string) ([]model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Attempt
	for _, a := range s.attempts {
		if a.InterviewID == interviewID && a.CandidateID == candidateID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemoryStore) SaveTranscript(_ context.Context, attemptID string, t model.Transcript) error {
	defer observe("save_transcript", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[attemptID]; !ok {
		return fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
	}
	s.transcripts[attemptID] = append(model.Transcript(nil), t...)
	return nil
}

func (s *MemoryStore) Transcript(_ context.Context, attemptID string) (model.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(model.Transcript(nil), s.transcripts[attemptID]...), nil
}

func (s *MemoryStore) CreateReport(_ context.Context, r model.Report) error { //nolint:gocritic // hugeParam: reports are stored by value
	defer observe("create_report", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reportKey{r.AttemptID, r.AttemptNumber}
	if _, ok := s.reports[key]; ok {
		return ErrReportExists
	}
	r.Scores = append([]model.ParameterScore(nil), r.Scores...)
	s.reports[key] = r
	return nil
}

func (s *MemoryStore) Report(_ context.Context, attemptID string, number int) (model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[reportKey{attemptID, number}]
	if !ok {
		return model.Report{}, fmt.Errorf("report: %w", ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) DeleteReport(_ context.Context, attemptID string, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, reportKey{attemptID, number})
	return nil
}

func (s *MemoryStore) Close() error { return nil }
