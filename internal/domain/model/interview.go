package model

import "time"

// InterviewConfig is what the session runtime reads once at start.
type InterviewConfig struct {
	InterviewID     string        `json:"interview_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Role            string        `json:"role"`
	Language        string        `json:"language"`
	Duration        time.Duration `json:"duration"`
	AllowedAttempts int           `json:"allowed_attempts"`
	UsedAttempts    int           `json:"used_attempts"`
	CEFR            bool          `json:"cefr"`
	Opening         string        `json:"opening"`
}

// Exhausted reports whether no further attempt may start.
func (c InterviewConfig) Exhausted() bool {
	return c.AllowedAttempts > 0 && c.UsedAttempts >= c.AllowedAttempts
}
