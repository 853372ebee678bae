// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an attempt.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// ParseStatus accepts the canonical names case-insensitively.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusNotStarted:
		return StatusNotStarted, true
	case StatusInProgress:
		return StatusInProgress, true
	case StatusCompleted:
		return StatusCompleted, true
	}
	return "", false
}

// Attempt is one candidate's one try at one interview.
type Attempt struct {
	ID              string
	InterviewID     string
	CandidateID     string
	Number          int // 1-based, increases per candidate+interview
	Status          Status
	StartedAt       time.Time
	CompletedAt     time.Time
	AllowedAttempts int
	ProctorStatus   ProctorStatus
}

// Completed reports whether the attempt is finalized.
func (a Attempt) Completed() bool { return a.Status == StatusCompleted }

// ProctorStatus is the advisory label produced by the proctoring monitor.
type ProctorStatus string

const (
	ProctorOK                ProctorStatus = "ok"
	ProctorNoFace            ProctorStatus = "no_face"
	ProctorMultiplePersons   ProctorStatus = "multiple_persons"
	ProctorFaceMismatch      ProctorStatus = "face_mismatch"
	ProctorBaselineCaptured  ProctorStatus = "baseline_captured"
	ProctorDetectorFailed    ProctorStatus = "detector_failed"
	ProctorCameraUnavailable ProctorStatus = "camera_unavailable"
)

// Valid reports whether s is a known label.
func (s ProctorStatus) Valid() bool {
	switch s {
	case ProctorOK, ProctorNoFace, ProctorMultiplePersons, ProctorFaceMismatch,
		ProctorBaselineCaptured, ProctorDetectorFailed, ProctorCameraUnavailable:
		return true
	}
	return false
}
