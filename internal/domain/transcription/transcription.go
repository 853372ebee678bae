// Package transcription defines the recognizer abstraction consumed by the
// turn-taking coordinator and two interchangeable strategies: continuous
// streaming recognition and segmented server relay.
//
// Neither strategy submits text to the conversation. Recognized text flows
// through a Sink (the coordinator) into a Pending buffer that the session
// takes explicitly.
package transcription

import (
	"context"
	"time"
)

// Result is one recognizer output.
type Result struct {
	Text  string
	Final bool
	At    time.Time
}

// Sink receives recognizer output. Offer reports whether the result was
// accepted; it must not block.
type Sink interface {
	Offer(Result) bool
}

// Adapter is a recognition strategy.
type Adapter interface {
	Name() string
	// Start begins recognition, delivering results to sink until Stop.
	Start(ctx context.Context, sink Sink) error
	// Stop ends recognition and waits for the strategy goroutine to exit.
	Stop(ctx context.Context) error
	// CancelSegment discards whatever audio or interim text is in flight.
	CancelSegment()
}
