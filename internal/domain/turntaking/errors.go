package turntaking

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrEnded             = errors.New("coordinator ended")
	ErrMuted             = errors.New("microphone muted")
)
