package report

import "errors"

// Sentinel errors for the report engine.
var (
	ErrEmptyRubric = errors.New("rubric has no parameters")
	ErrParseFailed = errors.New("evaluation parse failed")
)
