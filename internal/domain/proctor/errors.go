package proctor

import "errors"

var (
	ErrDetectorUnavailable = errors.New("face detector unavailable")
	ErrNoNativeFaces       = errors.New("frame carries no native face regions")
)
