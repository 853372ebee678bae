package session

import (
	"errors"

	"github.com/okian/intervue/internal/domain/model"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrNotStarted     = errors.New("session not started")
	ErrNothingToSend  = errors.New("no pending transcript to send")
	ErrNoUploader     = errors.New("no upload queue configured")

	ErrAttemptsExhausted = model.ErrAttemptsExhausted
	ErrAttemptCompleted  = model.ErrAttemptCompleted
)
