package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task status enums. pending and processing are non-terminal; completed and
// failed are terminal and admit no further transition.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// TaskErrorDispatchTimeout is recorded when a task sat in pending or
// processing past the visibility timeout and was reaped.
const TaskErrorDispatchTimeout = "dispatch timeout"

// ErrInvalidTransformSpec is returned when a submitted transform spec asks
// for nothing or for impossible dimensions.
var ErrInvalidTransformSpec = errors.New("invalid transform spec")

// ErrInvalidTransition is returned for any attempted transition the state
// machine does not permit, including every transition out of a terminal
// state.
var ErrInvalidTransition = errors.New("invalid task transition")

// ResizeSpec holds target dimensions for a resize step.
type ResizeSpec struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TransformSpec describes the image operations to apply. All fields are
// optional and freely combinable; the worker applies them in a fixed order:
// resize, then grayscale, then rotate.
type TransformSpec struct {
	Resize    *ResizeSpec `json:"resize,omitempty"`
	Grayscale bool        `json:"grayscale,omitempty"`
	Rotate    float64     `json:"rotate,omitempty"`
}

// IsZero reports whether the spec requests no work at all.
func (s TransformSpec) IsZero() bool {
	return s.Resize == nil && !s.Grayscale && s.Rotate == 0
}

// Validate rejects empty specs and non-positive resize dimensions.
func (s TransformSpec) Validate() error {
	if s.IsZero() {
		return ErrInvalidTransformSpec
	}
	if s.Resize != nil && (s.Resize.Width <= 0 || s.Resize.Height <= 0) {
		return ErrInvalidTransformSpec
	}
	return nil
}

// Task is an image transformation job. It is owned by the task store and
// mutated only through version-checked transitions.
type Task struct {
	ID             uuid.UUID     `json:"id"`
	OwnerID        uuid.UUID     `json:"owner_id"`
	InputRef       string        `json:"input_ref"`
	OutputRef      *string       `json:"output_ref,omitempty"`
	Spec           TransformSpec `json:"transform_spec"`
	Status         string        `json:"status"`
	ErrorReason    *string       `json:"error,omitempty"`
	CreditsCharged int64         `json:"credits_charged"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Terminal reports whether the status admits no further transition.
func TerminalStatus(status string) bool {
	return status == TaskStatusCompleted || status == TaskStatusFailed
}

// CanTransition is the task state machine:
// pending → processing → {completed, failed}, plus the timeout edge
// pending → failed. Terminal states have no outgoing edges.
func CanTransition(from, to string) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusProcessing || to == TaskStatusFailed
	case TaskStatusProcessing:
		return to == TaskStatusCompleted || to == TaskStatusFailed
	default:
		return false
	}
}
