package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/okian/intervue/internal/domain/model"
	"github.com/okian/intervue/pkg/logger"
)

type attemptRow struct {
	ID              string `gorm:"primaryKey;size:64"`
	InterviewID     string `gorm:"size:128;not null;uniqueIndex:idx_attempt_number,priority:1"`
	CandidateID     string `gorm:"size:128;not null;uniqueIndex:idx_attempt_number,priority:2"`
	Number          int    `gorm:"not null;uniqueIndex:idx_attempt_number,priority:3"`
	Status          string `gorm:"size:32;not null"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	AllowedAttempts int
	ProctorStatus   string `gorm:"size:32"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (attemptRow) TableName() string { return "attempts" }

type transcriptRow struct {
	AttemptID string         `gorm:"primaryKey;size:64"`
	Turns     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

func (transcriptRow) TableName() string { return "transcripts" }

type reportRow struct {
	ID            string         `gorm:"primaryKey;size:64"`
	AttemptID     string         `gorm:"size:64;not null;uniqueIndex:idx_report_attempt,priority:1"`
	AttemptNumber int            `gorm:"not null;uniqueIndex:idx_report_attempt,priority:2"`
	Scores        datatypes.JSON `gorm:"not null"`
	Summary       string
	Overall       float64
	Source        string `gorm:"size:16"`
	CreatedAt     time.Time
}

func (reportRow) TableName() string { return "reports" }

// GormStore is a relational Store.
type GormStore struct {
	db *gorm.DB
}

// Open connects to driver ("postgres" or "sqlite") and migrates the schema.
func Open(driver, dsn string, opts ...Option) (*GormStore, error) {
	o := gormOptions{logger: logger.Named("store")}
	for _, opt := range opts {
		opt(&o)
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLog(o.logger, o.logSQL),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if err := db.AutoMigrate(&attemptRow{}, &transcriptRow{}, &reportRow{}); err != nil {
		return nil, fmt.Errorf("migrate %s store: %w", driver, err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateAttempt(ctx context.Context, a model.Attempt) error { //nolint:gocritic // hugeParam: attempts are passed by value
	defer observe("create_attempt", time.Now())
	row := toAttemptRow(a)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&attemptRow{}).
			Where("id = ? OR (interview_id = ? AND candidate_id = ? AND number = ?)", a.ID, a.InterviewID, a.CandidateID, a.Number).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("attempt number %d: %w", a.Number, ErrConflict)
		}
		err := tx.Create(&row).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("attempt number %d: %w", a.Number, ErrConflict)
		}
		return err
	})
}

func (s *GormStore) UpdateAttempt(ctx context.Context, a model.Attempt) error { //nolint:gocritic // hugeParam: attempts are passed by value
	defer observe("update_attempt", time.Now())
	row := toAttemptRow(a)
	res := s.db.WithContext(ctx).Model(&attemptRow{}).Where("id = ?", a.ID).Updates(map[string]any{
		"number":           row.Number,
		"status":           row.Status,
		"started_at":       row.StartedAt,
		"completed_at":     row.CompletedAt,
		"allowed_attempts": row.AllowedAttempts,
		"proctor_status":   row.ProctorStatus,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("attempt %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

func (s *GormStore) Attempt(ctx context.Context, id string) (model.Attempt, error) {
	var row attemptRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return model.Attempt{}, notFound(err, "attempt "+id)
	}
	return row.toModel(), nil
}

func (s *GormStore) LatestAttempt(ctx context.Context, interviewID, candidateID string) (model.Attempt, error) {
	var row attemptRow
	err := s.db.WithContext(ctx).
		Where("interview_id = ? AND candidate_id = ?", interviewID, candidateID).
		Order("number DESC").
		First(&row).Error
	if err != nil {
		return model.Attempt{}, notFound(err, "latest attempt")
	}
	return row.toModel(), nil
}

func (s *GormStore) Attempts(ctx context.Context, interviewID, candidateID string) ([]model.Attempt, error) {
	var rows []attemptRow
	err := s.db.WithContext(ctx).
		Where("interview_id = ? AND candidate_id = ?", interviewID, candidateID).
		Order("number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.Attempt, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (s *GormStore) SaveTranscript(ctx context.Context, attemptID string, t model.Transcript) error {
	defer observe("save_transcript", time.Now())
	if _, err := s.Attempt(ctx, attemptID); err != nil {
		return err
	}
	if t == nil {
		t = model.Transcript{}
	}
	turns, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	row := transcriptRow{AttemptID: attemptID, Turns: datatypes.JSON(turns)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"turns", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) Transcript(ctx context.Context, attemptID string) (model.Transcript, error) {
	var row transcriptRow
	err := s.db.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Transcript{}, nil
	}
	if err != nil {
		return nil, err
	}
	var t model.Transcript
	if err := json.Unmarshal(row.Turns, &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return t, nil
}

func (s *GormStore) CreateReport(ctx context.Context, r model.Report) error { //nolint:gocritic // hugeParam: reports are passed by value
	defer observe("create_report", time.Now())
	scores, err := json.Marshal(r.Scores)
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}
	row := reportRow{
		ID:            r.ID,
		AttemptID:     r.AttemptID,
		AttemptNumber: r.AttemptNumber,
		Scores:        datatypes.JSON(scores),
		Summary:       r.Summary,
		Overall:       r.Overall,
		Source:        string(r.Source),
		CreatedAt:     r.CreatedAt,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&reportRow{}).
			Where("attempt_id = ? AND attempt_number = ?", r.AttemptID, r.AttemptNumber).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrReportExists
		}
		err := tx.Create(&row).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrReportExists
		}
		return err
	})
}

func (s *GormStore) Report(ctx context.Context, attemptID string, number int) (model.Report, error) {
	var row reportRow
	err := s.db.WithContext(ctx).
		Where("attempt_id = ? AND attempt_number = ?", attemptID, number).
		First(&row).Error
	if err != nil {
		return model.Report{}, notFound(err, "report")
	}
	var scores []model.ParameterScore
	if err := json.Unmarshal(row.Scores, &scores); err != nil {
		return model.Report{}, fmt.Errorf("decode scores: %w", err)
	}
	return model.Report{
		ID:            row.ID,
		AttemptID:     row.AttemptID,
		AttemptNumber: row.AttemptNumber,
		Scores:        scores,
		Summary:       row.Summary,
		Overall:       row.Overall,
		Source:        model.ScoreSource(row.Source),
		CreatedAt:     row.CreatedAt,
	}, nil
}

func (s *GormStore) DeleteReport(ctx context.Context, attemptID string, number int) error {
	return s.db.WithContext(ctx).
		Where("attempt_id = ? AND attempt_number = ?", attemptID, number).
		Delete(&reportRow{}).Error
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func toAttemptRow(a model.Attempt) attemptRow { //nolint:gocritic // hugeParam
	return attemptRow{
		ID:              a.ID,
		InterviewID:     a.InterviewID,
		CandidateID:     a.CandidateID,
		Number:          a.Number,
		Status:          string(a.Status),
		StartedAt:       timePtr(a.StartedAt),
		CompletedAt:     timePtr(a.CompletedAt),
		AllowedAttempts: a.AllowedAttempts,
		ProctorStatus:   string(a.ProctorStatus),
	}
}

func (r *attemptRow) toModel() model.Attempt {
	a := model.Attempt{
		ID:              r.ID,
		InterviewID:     r.InterviewID,
		CandidateID:     r.CandidateID,
		Number:          r.Number,
		Status:          model.Status(r.Status),
		AllowedAttempts: r.AllowedAttempts,
		ProctorStatus:   model.ProctorStatus(r.ProctorStatus),
	}
	if r.StartedAt != nil {
		a.StartedAt = *r.StartedAt
	}
	if r.CompletedAt != nil {
		a.CompletedAt = *r.CompletedAt
	}
	return a
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
