package api

import (
	"time"

	"github.com/okian/intervue/internal/domain/model"
)

// Multipart field names shared by the handlers and the runtime client.
const (
	FieldChunk     = "chunk"
	FieldSequence  = "sequence"
	FieldTimestamp = "timestamp"
	FieldAttemptID = "attempt_id"
	FieldSource    = "source"
	FieldPhoto     = "photo"
	FieldAudio     = "audio"
)

// Route paths.
const (
	PathConfig        = "/api/attempts/{token}/config"
	PathStatus        = "/api/attempts/{token}/status"
	PathChat          = "/api/attempts/{token}/chat"
	PathChunks        = "/api/attempts/{token}/chunks"
	PathTranscript    = "/api/attempts/{token}/transcript"
	PathProctorPhoto  = "/api/attempts/{token}/proctor-photo"
	PathProctorStatus = "/api/attempts/{token}/proctor-status"
	PathReport        = "/api/attempts/{token}/report"
	PathRubric        = "/api/interviews/{id}/rubric"
	PathTranscribe    = "/api/transcribe"
)

// ConfigResponse mirrors the OpenAPI schema for GET config.
type ConfigResponse struct {
	InterviewID     string `json:"interview_id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Role            string `json:"role,omitempty"`
	Language        string `json:"language,omitempty"`
	DurationSeconds int64  `json:"duration_seconds"`
	AllowedAttempts int    `json:"allowed_attempts"`
	UsedAttempts    int    `json:"used_attempts"`
	CEFR            bool   `json:"cefr"`
	Opening         string `json:"opening,omitempty"`
}

// NewConfigResponse converts an interview config into its wire shape.
func NewConfigResponse(c model.InterviewConfig) ConfigResponse { //nolint:gocritic // hugeParam
	return ConfigResponse{
		InterviewID:     c.InterviewID,
		Title:           c.Title,
		Description:     c.Description,
		Role:            c.Role,
		Language:        c.Language,
		DurationSeconds: int64(c.Duration / time.Second),
		AllowedAttempts: c.AllowedAttempts,
		UsedAttempts:    c.UsedAttempts,
		CEFR:            c.CEFR,
		Opening:         c.Opening,
	}
}

// Config converts the wire shape back into a model.InterviewConfig.
func (r ConfigResponse) Config() model.InterviewConfig { //nolint:gocritic // hugeParam
	return model.InterviewConfig{
		InterviewID:     r.InterviewID,
		Title:           r.Title,
		Description:     r.Description,
		Role:            r.Role,
		Language:        r.Language,
		Duration:        time.Duration(r.DurationSeconds) * time.Second,
		AllowedAttempts: r.AllowedAttempts,
		UsedAttempts:    r.UsedAttempts,
		CEFR:            r.CEFR,
		Opening:         r.Opening,
	}
}

// StatusRequest is the body of POST status.
type StatusRequest struct {
	Status string `json:"status"`
}

// AttemptResponse is the wire shape of an attempt.
type AttemptResponse struct {
	ID              string     `json:"id"`
	InterviewID     string     `json:"interview_id"`
	Number          int        `json:"number"`
	Status          string     `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	AllowedAttempts int        `json:"allowed_attempts"`
	ProctorStatus   string     `json:"proctor_status,omitempty"`
}

func newAttemptResponse(a model.Attempt) AttemptResponse { //nolint:gocritic // hugeParam
	out := AttemptResponse{
		ID:              a.ID,
		InterviewID:     a.InterviewID,
		Number:          a.Number,
		Status:          string(a.Status),
		AllowedAttempts: a.AllowedAttempts,
		ProctorStatus:   string(a.ProctorStatus),
	}
	if !a.StartedAt.IsZero() {
		t := a.StartedAt
		out.StartedAt = &t
	}
	if !a.CompletedAt.IsZero() {
		t := a.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// ChatRequest is the body of POST chat.
type ChatRequest struct {
	History          model.Transcript `json:"history"`
	Message          string           `json:"message"`
	ElapsedSeconds   float64          `json:"elapsed_seconds,omitempty"`
	RemainingSeconds float64          `json:"remaining_seconds,omitempty"`
}

// ChatResponse carries the interviewer's reply.
type ChatResponse struct {
	AttemptID string `json:"attempt_id"`
	Reply     string `json:"reply"`
}

// AckResponse acknowledges a received chunk.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// TranscriptRequest is the body of POST transcript.
type TranscriptRequest struct {
	AttemptID  string           `json:"attempt_id"`
	Transcript model.Transcript `json:"transcript"`
}

// PhotoResponse reports whether a proctor photo was stored.
type PhotoResponse struct {
	Stored bool `json:"stored"`
}

// ProctorStatusRequest is the body of POST proctor-status.
type ProctorStatusRequest struct {
	AttemptID string `json:"attempt_id"`
	Status    string `json:"status"`
}

// ReportRequest is the body of POST report.
type ReportRequest struct {
	AttemptNumber int                     `json:"attempt_number,omitempty"`
	Transcript    model.Transcript        `json:"transcript,omitempty"`
	Rubric        []model.RubricParameter `json:"rubric,omitempty"`
	Regenerate    bool                    `json:"regenerate,omitempty"`
	BypassLLM     *bool                   `json:"bypass_llm,omitempty"`
}

// RubricResponse lists an interview's normalized rubric.
type RubricResponse struct {
	InterviewID string                  `json:"interview_id"`
	Parameters  []model.RubricParameter `json:"parameters"`
}

// TranscribeResponse carries the recognized text of one relay segment.
type TranscribeResponse struct {
	Text string `json:"text"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
