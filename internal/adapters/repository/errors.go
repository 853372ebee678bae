package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("attempt number already taken")
	ErrReportExists  = errors.New("report already exists")
	ErrInvalidDriver = errors.New("unsupported store driver")
)
