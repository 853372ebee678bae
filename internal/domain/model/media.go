package model

import "time"

// MediaChunk is a locally produced media segment awaiting upload.
type MediaChunk struct {
	AttemptID  string
	Sequence   int64 // strictly increasing per attempt
	Payload    []byte
	CapturedAt time.Time
	Source     string // e.g. "interview", "screen"
}

// ProctorSample is a luminance descriptor of a detected face.
type ProctorSample struct {
	Descriptor []float64
	CapturedAt time.Time
}
