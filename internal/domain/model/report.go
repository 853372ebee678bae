package model

import "time"

// ScoreSource records which path produced a report's scores.
type ScoreSource string

const (
	SourceLLM      ScoreSource = "llm"
	SourceFallback ScoreSource = "fallback"
	SourceMixed    ScoreSource = "mixed"
)

// Report is the evaluation of one attempt.
type Report struct {
	ID            string           `json:"id"`
	AttemptID     string           `json:"attempt_id"`
	AttemptNumber int              `json:"attempt_number"`
	Scores        []ParameterScore `json:"scores"`
	Summary       string           `json:"summary"`
	Overall       float64          `json:"overall"`
	Source        ScoreSource      `json:"source"`
	CreatedAt     time.Time        `json:"created_at"`
}
