// Package repository persists attempts, transcripts and reports.
package repository

import (
	"context"

	"github.com/okian/intervue/internal/domain/model"
)

// Store provides read/write access to interview state.
type Store interface {
	// CreateAttempt inserts a new attempt. ErrConflict is returned when the
	// candidate already has an attempt with the same number.
	CreateAttempt(ctx context.Context, a model.Attempt) error
	// UpdateAttempt overwrites the mutable fields of an existing attempt.
	UpdateAttempt(ctx context.Context, a model.Attempt) error
	Attempt(ctx context.Context, id string) (model.Attempt, error)
	// LatestAttempt returns the highest numbered attempt of a candidate.
	LatestAttempt(ctx context.Context, interviewID, candidateID string) (model.Attempt, error)
	// Attempts lists a candidate's attempts by ascending number.
	Attempts(ctx context.Context, interviewID, candidateID string) ([]model.Attempt, error)

	// SaveTranscript replaces the stored transcript of an attempt.
	SaveTranscript(ctx context.Context, attemptID string, t model.Transcript) error
	// Transcript returns an empty transcript for an attempt without one.
	Transcript(ctx context.Context, attemptID string) (model.Transcript, error)

	// CreateReport fails with ErrReportExists when the attempt number
	// already has a report.
	CreateReport(ctx context.Context, r model.Report) error
	Report(ctx context.Context, attemptID string, number int) (model.Report, error)
	DeleteReport(ctx context.Context, attemptID string, number int) error

	Close() error
}
