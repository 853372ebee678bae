package model

import "errors"

// Attempt lifecycle errors shared by the server and the session runtime.
var (
	ErrAttemptsExhausted = errors.New("no attempts left")
	ErrAttemptCompleted  = errors.New("attempt already completed")
)
