package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	logx "dayplan/pkg/logx"
)

var testDay = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testWindow() Window {
	return Window{StartHour: 8, EndHour: 22, MinGapMinutes: 60, Location: time.UTC}
}

func at(h, m int) time.Time {
	return time.Date(2026, 3, 14, h, m, 0, 0, time.UTC)
}

// memStore is an in-memory Store that enforces the same overlap invariant the
// sqlite store does, plus injectable per-task placement failures.
type memStore struct {
	mu    sync.Mutex
	tasks []Task

	failPlacement map[string]error
}

func newMemStore() *memStore {
	return &memStore{failPlacement: map[string]error{}}
}

func (m *memStore) add(t Task) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = fmt.Sprintf("t%d", len(m.tasks)+1)
	}
	m.tasks = append(m.tasks, t)
	return t
}

func (m *memStore) byID(id string) *Task {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			return &m.tasks[i]
		}
	}
	return nil
}

func (m *memStore) ListPlannedActive(_ context.Context, userID string, from, to time.Time) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.tasks {
		if t.UserID != userID || !t.Planned || t.Status == StatusDone || t.StartAt == nil {
			continue
		}
		if t.StartAt.Before(from) || !t.StartAt.Before(to) {
			continue
		}
		out = append(out, t)
	}
	// insertion sort by start; small slices only
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].StartAt.Before(*out[j-1].StartAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (m *memStore) ListBacklogTodo(_ context.Context, userID string) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.tasks {
		if t.UserID == userID && !t.Planned && t.Status == StatusTodo {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) overlapLocked(userID string, start, end time.Time, excludeID string) *Task {
	for i := range m.tasks {
		t := &m.tasks[i]
		if t.UserID != userID || !t.Planned || t.Status == StatusDone || t.ID == excludeID {
			continue
		}
		if t.StartAt == nil || t.EndAt == nil {
			continue
		}
		if t.StartAt.Before(end) && t.EndAt.After(start) {
			return t
		}
	}
	return nil
}

func (m *memStore) UpdatePlacement(_ context.Context, taskID string, start, end time.Time) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failPlacement[taskID]; err != nil {
		return Task{}, err
	}
	t := m.byID(taskID)
	if t == nil {
		return Task{}, ErrNotFound
	}
	if c := m.overlapLocked(t.UserID, start, end, taskID); c != nil {
		return Task{}, ErrConflict
	}
	s, e := start, end
	t.Planned = true
	t.StartAt = &s
	t.EndAt = &e
	t.UpdatedAt = time.Now()
	return *t, nil
}

func (m *memStore) FindOverlap(_ context.Context, userID string, start, end time.Time, excludeID string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.overlapLocked(userID, start, end, excludeID); t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) CreateTask(_ context.Context, t Task) (Task, error) {
	return m.add(t), nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func newTestService(st *memStore) *Service {
	return New(st, testWindow, logx.Nop())
}

func planned(user string, start, end time.Time, status Status) Task {
	s, e := start, end
	return Task{
		UserID:          user,
		Title:           "planned",
		Priority:        PriorityNormal,
		Status:          status,
		DurationMinutes: minutesBetween(start, end),
		Planned:         true,
		StartAt:         &s,
		EndAt:           &e,
	}
}

func backlog(user, title string, prio Priority, durMin int) Task {
	return Task{
		UserID:          user,
		Title:           title,
		Priority:        prio,
		Status:          StatusTodo,
		DurationMinutes: durMin,
	}
}

// ---- gaps ----

func TestFindGapsNoTasks(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)

	gaps, err := svc.FindGaps(context.Background(), "u1", testDay)
	if err != nil {
		t.Fatalf("FindGaps: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("expected 1 gap, got %d", len(gaps))
	}
	g := gaps[0]
	if !g.Start.Equal(at(8, 0)) || !g.End.Equal(at(22, 0)) || g.DurationMinutes != 840 {
		t.Fatalf("unexpected full-day gap: %+v", g)
	}
}

func TestFindGapsBetweenTasks(t *testing.T) {
	st := newMemStore()
	st.add(planned("u1", at(9, 0), at(10, 0), StatusTodo))
	st.add(planned("u1", at(12, 0), at(13, 30), StatusInProgress))
	svc := newTestService(st)

	gaps, err := svc.FindGaps(context.Background(), "u1", testDay)
	if err != nil {
		t.Fatalf("FindGaps: %v", err)
	}
	want := []Gap{
		{Start: at(8, 0), End: at(9, 0), DurationMinutes: 60},
		{Start: at(10, 0), End: at(12, 0), DurationMinutes: 120},
		{Start: at(13, 30), End: at(22, 0), DurationMinutes: 510},
	}
	if len(gaps) != len(want) {
		t.Fatalf("expected %d gaps, got %d: %+v", len(want), len(gaps), gaps)
	}
	total := 0
	for i, g := range gaps {
		if !g.Start.Equal(want[i].Start) || !g.End.Equal(want[i].End) || g.DurationMinutes != want[i].DurationMinutes {
			t.Fatalf("gap %d mismatch: got %+v want %+v", i, g, want[i])
		}
		if g.DurationMinutes < 60 {
			t.Fatalf("gap %d shorter than minimum: %+v", i, g)
		}
		total += g.DurationMinutes
	}
	// gaps + tasks must cover the whole window (no sub-minimum residue here)
	if total+60+90 != 840 {
		t.Fatalf("gaps+tasks do not cover window: gaps=%d", total)
	}
}

func TestFindGapsSubMinimumSkipped(t *testing.T) {
	st := newMemStore()
	st.add(planned("u1", at(8, 30), at(21, 30), StatusTodo))
	svc := newTestService(st)

	gaps, err := svc.FindGaps(context.Background(), "u1", testDay)
	if err != nil {
		t.Fatalf("FindGaps: %v", err)
	}
	// 30 min before and after the task: both below the 60 min minimum.
	if len(gaps) != 0 {
		t.Fatalf("expected no gaps, got %+v", gaps)
	}
}

func TestFindGapsDoneTaskFreesSlot(t *testing.T) {
	st := newMemStore()
	st.add(planned("u1", at(9, 0), at(12, 0), StatusDone))
	svc := newTestService(st)

	gaps, err := svc.FindGaps(context.Background(), "u1", testDay)
	if err != nil {
		t.Fatalf("FindGaps: %v", err)
	}
	if len(gaps) != 1 || gaps[0].DurationMinutes != 840 {
		t.Fatalf("completed task should not block its slot: %+v", gaps)
	}
}

func TestGapsCursorNeverRetreats(t *testing.T) {
	// Second task ends before the first one does (overlapping data); the
	// cursor must not move backwards and reopen occupied time.
	long := planned("u1", at(9, 0), at(14, 0), StatusTodo)
	short := planned("u1", at(10, 0), at(11, 0), StatusTodo)
	gaps := gapsBetween([]Task{long, short}, at(8, 0), at(22, 0), 60)

	want := []Gap{
		{Start: at(8, 0), End: at(9, 0), DurationMinutes: 60},
		{Start: at(14, 0), End: at(22, 0), DurationMinutes: 480},
	}
	if len(gaps) != len(want) {
		t.Fatalf("expected %d gaps, got %+v", len(want), gaps)
	}
	for i := range want {
		if !gaps[i].Start.Equal(want[i].Start) || !gaps[i].End.Equal(want[i].End) {
			t.Fatalf("gap %d mismatch: got %+v want %+v", i, gaps[i], want[i])
		}
	}
}

func TestGapsMissingEndDoesNotAdvanceCursor(t *testing.T) {
	corrupt := planned("u1", at(9, 0), at(10, 0), StatusTodo)
	corrupt.EndAt = nil
	gaps := gapsBetween([]Task{corrupt}, at(8, 0), at(22, 0), 60)

	// The gap before the corrupt task's start is still emitted, but without
	// an end the task cannot move the cursor: the trailing gap spans from the
	// untouched cursor to the window end.
	if len(gaps) != 2 {
		t.Fatalf("expected 2 gaps, got %+v", gaps)
	}
	if !gaps[0].Start.Equal(at(8, 0)) || !gaps[0].End.Equal(at(9, 0)) {
		t.Fatalf("leading gap mismatch: %+v", gaps[0])
	}
	if !gaps[1].Start.Equal(at(8, 0)) || !gaps[1].End.Equal(at(22, 0)) {
		t.Fatalf("trailing gap must start at the unadvanced cursor: %+v", gaps[1])
	}
}

// ---- backlog ----

func TestSelectBacklogPriorityOrderStable(t *testing.T) {
	st := newMemStore()
	st.add(backlog("u1", "fut", PriorityFuture, 30))
	first := st.add(backlog("u1", "imp-1", PriorityImportant, 30))
	st.add(backlog("u1", "norm", PriorityNormal, 30))
	second := st.add(backlog("u1", "imp-2", PriorityImportant, 30))
	svc := newTestService(st)

	got, err := svc.SelectBacklog(context.Background(), "u1")
	if err != nil {
		t.Fatalf("SelectBacklog: %v", err)
	}
	wantTitles := []string{"imp-1", "imp-2", "norm", "fut"}
	if len(got) != len(wantTitles) {
		t.Fatalf("expected %d tasks, got %d", len(wantTitles), len(got))
	}
	for i, w := range wantTitles {
		if got[i].Title != w {
			t.Fatalf("position %d: got %q want %q", i, got[i].Title, w)
		}
	}
	if got[0].ID != first.ID || got[1].ID != second.ID {
		t.Fatalf("equal priorities must keep creation order: %q, %q", got[0].ID, got[1].ID)
	}
}

func TestSelectBacklogExcludesDoneAndPlanned(t *testing.T) {
	st := newMemStore()
	done := backlog("u1", "done", PriorityImportant, 30)
	done.Status = StatusDone
	st.add(done)
	st.add(planned("u1", at(9, 0), at(10, 0), StatusTodo))
	st.add(backlog("u1", "open", PriorityNormal, 30))
	svc := newTestService(st)

	got, err := svc.SelectBacklog(context.Background(), "u1")
	if err != nil {
		t.Fatalf("SelectBacklog: %v", err)
	}
	if len(got) != 1 || got[0].Title != "open" {
		t.Fatalf("unexpected backlog: %+v", got)
	}
}

// ---- auto-plan ----

func TestAutoPlanFirstFit(t *testing.T) {
	st := newMemStore()
	// Leave exactly one 90 minute gap at the end of the day.
	st.add(planned("u1", at(8, 0), at(20, 30), StatusTodo))
	a := st.add(backlog("u1", "a", PriorityNormal, 30))
	b := st.add(backlog("u1", "b", PriorityNormal, 30))
	st.add(backlog("u1", "c", PriorityNormal, 60))
	svc := newTestService(st)

	res, err := svc.AutoPlan(context.Background(), "u1", testDay)
	if err != nil {
		t.Fatalf("AutoPlan: %v", err)
	}
	if res.Planned != 2 || res.Leftover != 1 {
		t.Fatalf("expected planned=2 leftover=1, got %+v", res)
	}

	ta, tb := st.byID(a.ID), st.byID(b.ID)
	if !ta.StartAt.Equal(at(20, 30)) || !ta.EndAt.Equal(at(21, 0)) {
		t.Fatalf("first task misplaced: %v-%v", ta.StartAt, ta.EndAt)
	}
	if !tb.StartAt.Equal(at(21, 0)) || !tb.EndAt.Equal(at(21, 30)) {
		t.Fatalf("second task must follow back-to-back: %v-%v", tb.StartAt, tb.EndAt)
	}
}

func TestAutoPlanEmptyBacklogVsNothingFits(t *testing.T) {
	ctx := context.Background()

	st := newMemStore()
	svc := newTestService(st)
	res, err := svc.AutoPlan(ctx, "u1", testDay)
	if err != nil {
		t.Fatalf("AutoPlan: %v", err)
	}
	if res.Planned != 0 || res.Leftover != 0 {
		t.Fatalf("empty backlog must report {0,0}, got %+v", res)
	}

	// Backlog present but the day is fully booked: {0, 1}.
	st2 := newMemStore()
	st2.add(planned("u1", at(8, 0), at(22, 0), StatusTodo))
	st2.add(backlog("u1", "big", PriorityImportant, 30))
	svc2 := newTestService(st2)
	res2, err := svc2.AutoPlan(ctx, "u1", testDay)
	if err != nil {
		t.Fatalf("AutoPlan: %v", err)
	}
	if res2.Planned != 0 || res2.Leftover != 1 {
		t.Fatalf("expected {0,1}, got %+v", res2)
	}
}

func TestAutoPlanSecondRunIsNoop(t *testing.T) {
	st := newMemStore()
	st.add(backlog("u1", "a", PriorityNormal, 60))
	st.add(backlog("u1", "b", PriorityImportant, 120))
	svc := newTestService(st)
	ctx := context.Background()

	first, err := svc.AutoPlan(ctx, "u1", testDay)
	if err != nil {
		t.Fatalf("AutoPlan: %v", err)
	}
	if first.Planned != 2 {
		t.Fatalf("expected both tasks planned, got %+v", first)
	}

	second, err := svc.AutoPlan(ctx, "u1", testDay)
	if err != nil {
		t.Fatalf("AutoPlan (second): %v", err)
	}
	if second.Planned != 0 || second.Leftover != 0 {
		t.Fatalf("second run must be a no-op, got %+v", second)
	}
}

func TestAutoPlanPreservesOverlapInvariant(t *testing.T) {
	st := newMemStore()
	st.add(planned("u1", at(9, 0), at(10, 0), StatusTodo))
	st.add(planned("u1", at(13, 0), at(15, 0), StatusTodo))
	for i := 0; i < 5; i++ {
		st.add(backlog("u1", fmt.Sprintf("b%d", i), PriorityNormal, 90))
	}
	svc := newTestService(st)

	if _, err := svc.AutoPlan(context.Background(), "u1", testDay); err != nil {
		t.Fatalf("AutoPlan: %v", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	active := make([]Task, 0, len(st.tasks))
	for _, tk := range st.tasks {
		if tk.Planned && tk.Status != StatusDone {
			active = append(active, tk)
		}
	}
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			a, b := active[i], active[j]
			if a.StartAt.Before(*b.EndAt) && a.EndAt.After(*b.StartAt) {
				t.Fatalf("overlap between %q (%v-%v) and %q (%v-%v)",
					a.Title, a.StartAt, a.EndAt, b.Title, b.StartAt, b.EndAt)
			}
		}
	}
}

func TestAutoPlanPartialFailureIsolated(t *testing.T) {
	st := newMemStore()
	st.add(backlog("u1", "first", PriorityImportant, 60))
	bad := st.add(backlog("u1", "second", PriorityNormal, 60))
	st.add(backlog("u1", "third", PriorityFuture, 60))
	st.failPlacement[bad.ID] = ErrConflict
	svc := newTestService(st)

	res, err := svc.AutoPlan(context.Background(), "u1", testDay)
	if err != nil {
		t.Fatalf("AutoPlan: %v", err)
	}
	if res.Planned != 2 || res.Leftover != 1 {
		t.Fatalf("expected planned=2 leftover=1, got %+v", res)
	}
	if res.PartialFailures != 1 {
		t.Fatalf("expected 1 partial failure, got %d", res.PartialFailures)
	}
	if tk := st.byID(bad.ID); tk.Planned {
		t.Fatalf("failed task must stay in the backlog")
	}
}

// ---- creation / overlap ----

func TestCreateTaskOverlapRejected(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)
	ctx := context.Background()

	start := at(9, 0)
	if _, err := svc.CreateTask(ctx, "u1", TaskInput{Title: "one", DurationMinutes: 60, StartAt: &start}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	before := st.count()

	_, err := svc.CreateTask(ctx, "u1", TaskInput{Title: "two", DurationMinutes: 60, StartAt: &start})
	if !IsOverlap(err) {
		t.Fatalf("expected OverlapError, got %v", err)
	}
	if st.count() != before {
		t.Fatalf("rejected creation must not persist a row")
	}
}

func TestCreateTaskAdjacentIntervalsAllowed(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)
	ctx := context.Background()

	s1 := at(9, 0)
	if _, err := svc.CreateTask(ctx, "u1", TaskInput{Title: "one", DurationMinutes: 60, StartAt: &s1}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	// [10:00, 11:00) touches [9:00, 10:00) but half-open intervals do not overlap.
	s2 := at(10, 0)
	if _, err := svc.CreateTask(ctx, "u1", TaskInput{Title: "two", DurationMinutes: 60, StartAt: &s2}); err != nil {
		t.Fatalf("adjacent interval rejected: %v", err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()

	cases := []struct {
		name string
		in   TaskInput
	}{
		{"empty title", TaskInput{Title: "  ", DurationMinutes: 30}},
		{"zero duration", TaskInput{Title: "x", DurationMinutes: 0}},
		{"negative duration", TaskInput{Title: "x", DurationMinutes: -15}},
		{"bad priority", TaskInput{Title: "x", DurationMinutes: 30, Priority: "URGENT"}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateTask(ctx, "u1", tc.in); !IsValidation(err) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}
}

func TestCreateTaskBacklogDefaults(t *testing.T) {
	st := newMemStore()
	svc := newTestService(st)

	got, err := svc.CreateTask(context.Background(), "u1", TaskInput{Title: "read", DurationMinutes: 30})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if got.Planned || got.StartAt != nil || got.EndAt != nil {
		t.Fatalf("backlog task must be unplanned: %+v", got)
	}
	if got.Priority != PriorityNormal || got.Status != StatusTodo {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestHasOverlapIgnoresDoneAndExcluded(t *testing.T) {
	st := newMemStore()
	done := planned("u1", at(9, 0), at(10, 0), StatusDone)
	st.add(done)
	own := st.add(planned("u1", at(11, 0), at(12, 0), StatusTodo))
	svc := newTestService(st)
	ctx := context.Background()

	if ov, err := svc.HasOverlap(ctx, "u1", at(9, 0), at(10, 0), ""); err != nil || ov {
		t.Fatalf("DONE task must not block its slot: ov=%v err=%v", ov, err)
	}
	if ov, err := svc.HasOverlap(ctx, "u1", at(11, 0), at(12, 0), own.ID); err != nil || ov {
		t.Fatalf("excluded task must not count: ov=%v err=%v", ov, err)
	}
	if ov, err := svc.HasOverlap(ctx, "u1", at(11, 30), at(12, 30), ""); err != nil || !ov {
		t.Fatalf("expected overlap: ov=%v err=%v", ov, err)
	}
}

func TestPriorityRank(t *testing.T) {
	if PriorityImportant.Rank() != 0 || PriorityNormal.Rank() != 1 || PriorityFuture.Rank() != 2 {
		t.Fatalf("priority ranks drifted")
	}
	if Priority("??").Rank() <= PriorityFuture.Rank() {
		t.Fatalf("unknown priority must sort last")
	}
}

var _ Store = (*memStore)(nil)

// Guard against accidental fatal aborts on store errors during reads.
func TestAutoPlanPropagatesReadErrors(t *testing.T) {
	svc := New(failingStore{}, testWindow, logx.Nop())
	if _, err := svc.AutoPlan(context.Background(), "u1", testDay); err == nil {
		t.Fatalf("expected error")
	}
}

type failingStore struct{}

var errBroken = errors.New("store unavailable")

func (failingStore) ListPlannedActive(context.Context, string, time.Time, time.Time) ([]Task, error) {
	return nil, errBroken
}
func (failingStore) ListBacklogTodo(context.Context, string) ([]Task, error) { return nil, errBroken }
func (failingStore) UpdatePlacement(context.Context, string, time.Time, time.Time) (Task, error) {
	return Task{}, errBroken
}
func (failingStore) FindOverlap(context.Context, string, time.Time, time.Time, string) (*Task, error) {
	return nil, errBroken
}
func (failingStore) CreateTask(context.Context, Task) (Task, error) { return Task{}, errBroken }
