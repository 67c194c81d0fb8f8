package planner

import (
	"errors"
	"fmt"
	"time"
)

// ErrConflict is returned by stores whose placement commit lost a race
// against a concurrent writer. The planner treats it as a per-task failure,
// not a fatal one.
var ErrConflict = errors.New("time slot conflicts with an existing task")

// ErrNotFound is returned by stores for unknown task or user ids.
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// OverlapError reports a direct creation/update whose explicit interval
// collides with an existing active task. It is surfaced to the caller
// verbatim and never auto-resolved.
type OverlapError struct {
	Start time.Time
	End   time.Time
	With  *Task
}

func (e *OverlapError) Error() string {
	if e.With != nil {
		return fmt.Sprintf("interval %s-%s overlaps task %q",
			e.Start.Format("15:04"), e.End.Format("15:04"), e.With.Title)
	}
	return fmt.Sprintf("interval %s-%s overlaps an existing task",
		e.Start.Format("15:04"), e.End.Format("15:04"))
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsOverlap reports whether err is an OverlapError.
func IsOverlap(err error) bool {
	var oe *OverlapError
	return errors.As(err, &oe)
}
