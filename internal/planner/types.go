package planner

import (
	"time"
)

// Priority orders backlog tasks during auto-planning.
type Priority string

const (
	PriorityImportant Priority = "IMPORTANT"
	PriorityNormal    Priority = "NORMAL"
	PriorityFuture    Priority = "FUTURE"
)

// Rank returns the fixed scheduling rank for a priority. Lower plans first.
//
// The explicit mapping is used everywhere priorities are compared; sorting
// must never fall back to the incidental string order of the storage layer.
func (p Priority) Rank() int {
	switch p {
	case PriorityImportant:
		return 0
	case PriorityNormal:
		return 1
	case PriorityFuture:
		return 2
	default:
		// Unknown priorities sort last so corrupt rows cannot jump the queue.
		return 3
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityImportant, PriorityNormal, PriorityFuture:
		return true
	}
	return false
}

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task is the unit being scheduled.
//
// Invariants:
//   - Planned == true implies StartAt and EndAt are set and
//     *EndAt == StartAt.Add(DurationMinutes).
//   - Planned == false implies StartAt and EndAt are nil.
//   - For one user, no two tasks with Planned == true and Status != DONE may
//     have overlapping [start, end) intervals.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string

	Priority Priority
	Status   Status

	DurationMinutes int
	Planned         bool
	StartAt         *time.Time
	EndAt           *time.Time
	DueAt           *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Gap is a free interval within the working window. Gaps live only for the
// duration of one planning invocation and are consumed in place as tasks are
// fitted into them.
type Gap struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

// TaskInput is the caller-facing shape for task creation. A non-nil StartAt
// creates a pre-planned task (subject to overlap validation); nil creates a
// backlog task.
type TaskInput struct {
	Title           string
	Description     string
	Priority        Priority
	DurationMinutes int
	StartAt         *time.Time
	DueAt           *time.Time
}

// PlanResult summarizes one AutoPlan invocation.
//
// Planned == 0 with Leftover == 0 means the backlog was empty; Planned == 0
// with Leftover > 0 means backlog tasks existed but none fit. Callers rely on
// that distinction.
type PlanResult struct {
	Planned         int    `json:"planned"`
	Leftover        int    `json:"leftover"`
	PartialFailures int    `json:"partial_failures,omitempty"`
	Placed          []Task `json:"-"`
}

// Window is the per-invocation working-day window. Gaps and placements are
// only considered between StartHour:00 and EndHour:00 local to the planned
// date.
type Window struct {
	StartHour     int
	EndHour       int
	MinGapMinutes int
	Location      *time.Location
}

// DefaultWindow is the 08:00-22:00 working day with a 60 minute minimum slot.
func DefaultWindow() Window {
	return Window{StartHour: 8, EndHour: 22, MinGapMinutes: 60}
}

// Bounds resolves the window against a calendar date.
func (w Window) Bounds(date time.Time) (start, end time.Time) {
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	d := date.In(loc)
	start = time.Date(d.Year(), d.Month(), d.Day(), w.StartHour, 0, 0, 0, loc)
	end = time.Date(d.Year(), d.Month(), d.Day(), w.EndHour, 0, 0, 0, loc)
	return start, end
}

func minutesBetween(a, b time.Time) int {
	return int(b.Sub(a) / time.Minute)
}
