package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dayplan/internal/planner"
)

const taskColumns = `id, user_id, title, description, priority, status,
	duration_minutes, planned, start_at, end_at, due_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (planner.Task, error) {
	var (
		t                    planner.Task
		planned              int
		start, end, due      sql.NullInt64
		createdMS, updatedMS int64
	)
	err := r.Scan(
		&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &t.Status,
		&t.DurationMinutes, &planned, &start, &end, &due, &createdMS, &updatedMS,
	)
	if err != nil {
		return planner.Task{}, err
	}
	t.Planned = planned != 0
	t.StartAt = fromMillisNull(start)
	t.EndAt = fromMillisNull(end)
	t.DueAt = fromMillisNull(due)
	t.CreatedAt = fromMillis(createdMS)
	t.UpdatedAt = fromMillis(updatedMS)
	return t, nil
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]planner.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []planner.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTask(ctx context.Context, t planner.Task) (planner.Task, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Title, t.Description, string(t.Priority), string(t.Status),
		t.DurationMinutes, boolInt(t.Planned),
		toMillisPtr(t.StartAt), toMillisPtr(t.EndAt), toMillisPtr(t.DueAt),
		toMillis(t.CreatedAt), toMillis(t.UpdatedAt),
	)
	if err != nil {
		return planner.Task{}, err
	}
	return t, nil
}

func (s *Store) TaskByID(ctx context.Context, userID, id string) (planner.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return planner.Task{}, planner.ErrNotFound
	}
	return t, err
}

// ListTasks returns every task of a user, newest first.
func (s *Store) ListTasks(ctx context.Context, userID string) ([]planner.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
}

// ListPlannedActive implements planner.Store: planned, not DONE, start within
// [from, to), ascending by start.
func (s *Store) ListPlannedActive(ctx context.Context, userID string, from, to time.Time) ([]planner.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND planned = 1 AND status != ?
		   AND start_at >= ? AND start_at < ?
		 ORDER BY start_at ASC`,
		userID, string(planner.StatusDone), toMillis(from), toMillis(to))
}

// ListBacklogTodo implements planner.Store; rowid order is creation order.
func (s *Store) ListBacklogTodo(ctx context.Context, userID string) ([]planner.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND planned = 0 AND status = ?
		 ORDER BY created_at ASC, rowid ASC`,
		userID, string(planner.StatusTodo))
}

const overlapWhere = `user_id = ? AND planned = 1 AND status != ?
	AND id != ? AND start_at < ? AND end_at > ?`

// FindOverlap implements planner.Store (half-open interval test).
func (s *Store) FindOverlap(ctx context.Context, userID string, start, end time.Time, excludeID string) (*planner.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+overlapWhere+` LIMIT 1`,
		userID, string(planner.StatusDone), excludeID, toMillis(end), toMillis(start))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdatePlacement implements planner.Store. The overlap check and the write
// run in one transaction so a racing writer fails with planner.ErrConflict
// instead of double-booking the slot.
func (s *Store) UpdatePlacement(ctx context.Context, taskID string, start, end time.Time) (planner.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return planner.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return planner.Task{}, planner.ErrNotFound
	}
	if err != nil {
		return planner.Task{}, err
	}

	var conflicts int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM tasks WHERE `+overlapWhere,
		t.UserID, string(planner.StatusDone), taskID, toMillis(end), toMillis(start),
	).Scan(&conflicts)
	if err != nil {
		return planner.Task{}, err
	}
	if conflicts > 0 {
		return planner.Task{}, planner.ErrConflict
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET planned = 1, start_at = ?, end_at = ?, updated_at = ? WHERE id = ?`,
		toMillis(start), toMillis(end), toMillis(now), taskID)
	if err != nil {
		return planner.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return planner.Task{}, err
	}

	st, en := start.UTC(), end.UTC()
	t.Planned = true
	t.StartAt = &st
	t.EndAt = &en
	t.UpdatedAt = now.UTC()
	return t, nil
}

// SetStatus updates a task's status for its owner and returns the new row.
func (s *Store) SetStatus(ctx context.Context, userID, id string, status planner.Status) (planner.Task, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		string(status), toMillis(time.Now()), id, userID)
	if err != nil {
		return planner.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return planner.Task{}, planner.ErrNotFound
	}
	return s.TaskByID(ctx, userID, id)
}

// ListPlannedBetween returns planned tasks (any status, DONE included) whose
// start falls within [from, to). This is the day view the bot and the daily
// digest render.
func (s *Store) ListPlannedBetween(ctx context.Context, userID string, from, to time.Time) ([]planner.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND planned = 1 AND start_at >= ? AND start_at < ?
		 ORDER BY start_at ASC`,
		userID, toMillis(from), toMillis(to))
}

// ListDoneBetween returns tasks completed (updated) within [from, to),
// most recent first.
func (s *Store) ListDoneBetween(ctx context.Context, userID string, from, to time.Time) ([]planner.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND status = ? AND updated_at >= ? AND updated_at < ?
		 ORDER BY updated_at DESC`,
		userID, string(planner.StatusDone), toMillis(from), toMillis(to))
}

// ListOverdue returns not-DONE tasks whose due time has passed.
func (s *Store) ListOverdue(ctx context.Context, userID string, now time.Time) ([]planner.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND status != ? AND due_at IS NOT NULL AND due_at < ?
		 ORDER BY due_at ASC`,
		userID, string(planner.StatusDone), toMillis(now))
}

// ListStartingBetween returns active planned tasks across all users whose
// start falls within [from, to). Used by the pre-start reminder job.
func (s *Store) ListStartingBetween(ctx context.Context, from, to time.Time) ([]planner.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE planned = 1 AND status != ? AND start_at >= ? AND start_at < ?
		 ORDER BY start_at ASC`,
		string(planner.StatusDone), toMillis(from), toMillis(to))
}

// MarkReminded records that a reminder of the given kind went out for a task.
// It reports false when the reminder was already logged, which makes reminder
// sends idempotent across job reruns and restarts.
func (s *Store) MarkReminded(ctx context.Context, taskID, kind string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reminder_log (task_id, kind, sent_at) VALUES (?,?,?)`,
		taskID, kind, toMillis(time.Now()))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
