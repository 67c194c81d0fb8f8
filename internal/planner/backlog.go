package planner

import (
	"context"
	"sort"
)

// SelectBacklog returns the user's unplanned TODO tasks in planning order:
// ascending priority rank, ties broken by fetch (creation) order.
// Pure read: no side effects.
func (s *Service) SelectBacklog(ctx context.Context, userID string) ([]Task, error) {
	tasks, err := s.store.ListBacklogTodo(ctx, userID)
	if err != nil {
		return nil, err
	}
	sortBacklog(tasks)
	return tasks, nil
}

// sortBacklog must stay stable: no secondary key is guaranteed, so fetch
// order is the only deterministic tiebreak between equal priorities.
func sortBacklog(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Priority.Rank() < tasks[j].Priority.Rank()
	})
}
