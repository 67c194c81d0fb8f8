package planner

import (
	"context"
	"time"
)

// FindGaps computes the ordered free intervals of a user's working day.
// Pure read: no side effects.
func (s *Service) FindGaps(ctx context.Context, userID string, date time.Time) ([]Gap, error) {
	win := s.window()
	from, to := win.Bounds(date)
	tasks, err := s.store.ListPlannedActive(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	return gapsBetween(tasks, from, to, win.MinGapMinutes), nil
}

// gapsBetween walks the window left to right with a cursor starting at from.
// Intervals shorter than minGap minutes are not emitted. The cursor never
// retreats: a task ending before the cursor (overlapping or out-of-order
// data) cannot reopen time that is already accounted for.
func gapsBetween(tasks []Task, from, to time.Time, minGap int) []Gap {
	gaps := make([]Gap, 0, len(tasks)+1)
	cursor := from

	for _, t := range tasks {
		if t.StartAt == nil {
			continue
		}
		if mins := minutesBetween(cursor, *t.StartAt); mins >= minGap {
			gaps = append(gaps, Gap{Start: cursor, End: *t.StartAt, DurationMinutes: mins})
		}
		// A planned task without an end is corrupt placement data; it still
		// occupies its start but cannot advance the cursor.
		if t.EndAt != nil && t.EndAt.After(cursor) {
			cursor = *t.EndAt
		}
	}

	if mins := minutesBetween(cursor, to); mins >= minGap {
		gaps = append(gaps, Gap{Start: cursor, End: to, DurationMinutes: mins})
	}
	return gaps
}
