package planner

import (
	"context"
	"time"
)

// Store is the persistence contract the engine consumes. The engine is
// agnostic to the backing technology; it only requires that UpdatePlacement
// is atomic with respect to the overlap invariant (check-then-write inside a
// transaction, or a storage constraint that rejects on conflict with
// ErrConflict).
type Store interface {
	// ListPlannedActive returns tasks with planned=true, status != DONE and
	// start within [from, to), ordered ascending by start.
	ListPlannedActive(ctx context.Context, userID string, from, to time.Time) ([]Task, error)

	// ListBacklogTodo returns tasks with planned=false and status=TODO in
	// creation order. Creation order is the deterministic tiebreak for equal
	// priorities.
	ListBacklogTodo(ctx context.Context, userID string) ([]Task, error)

	// UpdatePlacement marks a task planned with the given interval and
	// returns the updated row. It returns ErrConflict when the interval
	// collides with a concurrently committed active task.
	UpdatePlacement(ctx context.Context, taskID string, start, end time.Time) (Task, error)

	// FindOverlap returns an active planned task of the user whose [start,end)
	// interval overlaps the given one (task.start < end && task.end > start),
	// excluding excludeID when non-empty, or nil when the slot is free.
	FindOverlap(ctx context.Context, userID string, start, end time.Time, excludeID string) (*Task, error)

	// CreateTask persists a new task.
	CreateTask(ctx context.Context, t Task) (Task, error)
}
