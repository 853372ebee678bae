package client

import (
	"errors"
	"fmt"

	"github.com/okian/intervue/internal/domain/model"
)

var (
	ErrMissingBaseURL = errors.New("missing server base url")
	ErrMissingToken   = errors.New("missing invitation token")
	ErrNotFound       = errors.New("not found")
	ErrUnavailable    = errors.New("server dependency unavailable")
)

// StatusError is a non-2xx reply from the server.
type StatusError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// Is maps server error codes onto the errors callers branch on.
func (e *StatusError) Is(target error) bool {
	switch target {
	case model.ErrAttemptsExhausted:
		return e.Code == "attempts_exhausted"
	case model.ErrAttemptCompleted:
		return e.Code == "attempt_completed"
	case ErrNotFound:
		return e.Status == 404
	case ErrUnavailable:
		return e.Status == 502 || e.Status == 503
	}
	return false
}
