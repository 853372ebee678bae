package model

import (
	"strings"
	"time"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptTurn is one message in the interview conversation.
type TranscriptTurn struct {
	Role Role      `json:"role" yaml:"role"`
	Text string    `json:"text" yaml:"text"`
	At   time.Time `json:"timestamp" yaml:"timestamp"`
}

// Transcript is an ordered conversation.
type Transcript []TranscriptTurn

// HasContent reports whether the transcript has at least one turn.
func (t Transcript) HasContent() bool { return len(t) > 0 }

// CandidateText joins every user turn with single spaces.
func (t Transcript) CandidateText() string {
	parts := make([]string, 0, len(t))
	for _, turn := range t {
		if turn.Role == RoleUser {
			if s := strings.TrimSpace(turn.Text); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}

// QAPair is an interviewer question and the candidate answer that followed it.
// Answer is empty when the candidate did not reply before the next question.
type QAPair struct {
	Question string
	Answer   string
}

// Pairs groups each assistant turn with the user turns that follow it up to
// the next assistant turn. User turns before the first question are kept as
// an answer to an empty question.
func (t Transcript) Pairs() []QAPair {
	var (
		pairs   []QAPair
		current *QAPair
		answer  []string
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Answer = strings.Join(answer, " ")
		pairs = append(pairs, *current)
		current, answer = nil, nil
	}
	for _, turn := range t {
		text := strings.TrimSpace(turn.Text)
		switch turn.Role {
		case RoleAssistant:
			flush()
			current = &QAPair{Question: text}
		case RoleUser:
			if current == nil {
				current = &QAPair{}
			}
			if text != "" {
				answer = append(answer, text)
			}
		}
	}
	flush()
	return pairs
}
