package transcription

import "errors"

var (
	ErrAlreadyRunning = errors.New("recognizer already running")
	ErrUnavailable    = errors.New("recognizer unavailable")
)
