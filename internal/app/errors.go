package service

import (
	"errors"

	"github.com/okian/intervue/internal/domain/model"
)

var (
	ErrUnknownToken             = errors.New("unknown invitation token")
	ErrNotFound                 = errors.New("not found")
	ErrInvalidInput             = errors.New("invalid input")
	ErrAttemptNotStarted        = errors.New("attempt not started")
	ErrAttemptNotCompleted      = errors.New("attempt not completed")
	ErrLLMUnavailable           = errors.New("language model unavailable")
	ErrTranscriptionUnavailable = errors.New("transcription unavailable")

	ErrAttemptsExhausted = model.ErrAttemptsExhausted
	ErrAttemptCompleted  = model.ErrAttemptCompleted
)

// ErrTranscriptionFailed marks a relay request the speech backend could not serve.
var ErrTranscriptionFailed = errors.New("transcription failed")
