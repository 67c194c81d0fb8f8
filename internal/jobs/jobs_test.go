package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"dayplan/internal/planner"
	"dayplan/internal/storage"
	logx "dayplan/pkg/logx"
)

type stubStore struct {
	linked   []storage.User
	autoPlan []storage.User
	starting []planner.Task
	overdue  map[string][]planner.Task
	planned  map[string][]planner.Task

	mu       sync.Mutex
	reminded map[string]bool
}

func (s *stubStore) ListLinkedUsers(context.Context) ([]storage.User, error) {
	return s.linked, nil
}

func (s *stubStore) ListAutoPlanUsers(context.Context) ([]storage.User, error) {
	return s.autoPlan, nil
}

func (s *stubStore) UserByID(_ context.Context, id string) (storage.User, error) {
	for _, u := range append(append([]storage.User{}, s.linked...), s.autoPlan...) {
		if u.ID == id {
			return u, nil
		}
	}
	return storage.User{}, planner.ErrNotFound
}

func (s *stubStore) ListPlannedBetween(_ context.Context, userID string, _, _ time.Time) ([]planner.Task, error) {
	return s.planned[userID], nil
}

func (s *stubStore) ListOverdue(_ context.Context, userID string, _ time.Time) ([]planner.Task, error) {
	return s.overdue[userID], nil
}

func (s *stubStore) ListStartingBetween(context.Context, time.Time, time.Time) ([]planner.Task, error) {
	return s.starting, nil
}

func (s *stubStore) MarkReminded(_ context.Context, taskID, kind string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reminded == nil {
		s.reminded = map[string]bool{}
	}
	key := taskID + "|" + kind
	if s.reminded[key] {
		return false, nil
	}
	s.reminded[key] = true
	return true, nil
}

type stubPlanner struct {
	gaps    []planner.Gap
	results map[string]planner.PlanResult
	failFor string
}

func (p *stubPlanner) AutoPlan(_ context.Context, userID string, _ time.Time) (planner.PlanResult, error) {
	if userID == p.failFor {
		return planner.PlanResult{}, errors.New("store exploded")
	}
	return p.results[userID], nil
}

func (p *stubPlanner) FindGaps(context.Context, string, time.Time) ([]planner.Gap, error) {
	return p.gaps, nil
}

type captureQueue struct {
	mu   sync.Mutex
	sent []string // "<chatID>:<text>"
}

func (q *captureQueue) Send(_ context.Context, chatID int64, text string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, text)
	_ = chatID
	return nil
}

func (q *captureQueue) texts() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.sent...)
}

func newTestService(store *stubStore, plan *stubPlanner, out *captureQueue) *Service {
	return New(Config{}, store, plan, out, planner.DefaultWindow, logx.Nop())
}

func linkedUser(id string, chat int64) storage.User {
	return storage.User{ID: id, TelegramChatID: chat}
}

func TestPreStartRemindersDeduped(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := &stubStore{
		linked:   []storage.User{linkedUser("u1", 100)},
		starting: []planner.Task{{ID: "t1", UserID: "u1", Title: "Standup", StartAt: &start}},
	}
	out := &captureQueue{}
	s := newTestService(store, &stubPlanner{}, out)

	now := start.Add(-30 * time.Minute)
	s.runPreStart(context.Background(), now)
	s.runPreStart(context.Background(), now)

	got := out.texts()
	if len(got) != 1 {
		t.Fatalf("sent = %v, want exactly one reminder", got)
	}
	if !strings.Contains(got[0], "In 30 minutes: Standup") {
		t.Fatalf("reminder text = %q", got[0])
	}
}

func TestPreStartSkipsUnlinkedOwner(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := &stubStore{
		linked:   []storage.User{{ID: "u1"}}, // no chat bound
		starting: []planner.Task{{ID: "t1", UserID: "u1", Title: "x", StartAt: &start}},
	}
	out := &captureQueue{}
	s := newTestService(store, &stubPlanner{}, out)

	s.runPreStart(context.Background(), start.Add(-30*time.Minute))
	if got := out.texts(); len(got) != 0 {
		t.Fatalf("sent = %v, want none", got)
	}
}

func TestGapReminderPicksFirstFutureGap(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return day.Add(time.Duration(h) * time.Hour) }
	store := &stubStore{linked: []storage.User{linkedUser("u1", 100)}}
	plan := &stubPlanner{gaps: []planner.Gap{
		{Start: at(8), End: at(9), DurationMinutes: 60},
		{Start: at(14), End: at(16), DurationMinutes: 120},
	}}
	out := &captureQueue{}
	s := newTestService(store, plan, out)

	// Noon: the morning gap has passed, the afternoon one is announced.
	s.runGapReminder(context.Background(), at(12))
	got := out.texts()
	if len(got) != 1 || !strings.Contains(got[0], "14:00–16:00 (120 min)") {
		t.Fatalf("sent = %v, want the 14:00 gap", got)
	}

	// Evening: nothing ahead, no message.
	out2 := &captureQueue{}
	s2 := newTestService(store, plan, out2)
	s2.runGapReminder(context.Background(), at(17))
	if got := out2.texts(); len(got) != 0 {
		t.Fatalf("sent = %v, want none after the last gap", got)
	}
}

func TestOverdueOnlySentWhenNonEmpty(t *testing.T) {
	due := time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC)
	store := &stubStore{
		linked: []storage.User{linkedUser("u1", 100), linkedUser("u2", 200)},
		overdue: map[string][]planner.Task{
			"u1": {{ID: "t1", UserID: "u1", Title: "Taxes", DueAt: &due}},
		},
	}
	out := &captureQueue{}
	s := newTestService(store, &stubPlanner{}, out)

	s.runOverdue(context.Background(), due.Add(26*time.Hour))
	got := out.texts()
	if len(got) != 1 || !strings.Contains(got[0], "Taxes") {
		t.Fatalf("sent = %v, want one overdue list", got)
	}
}

func TestAutoPlanSweepIsolatesFailures(t *testing.T) {
	store := &stubStore{autoPlan: []storage.User{
		linkedUser("u1", 100), linkedUser("u2", 200), linkedUser("u3", 300),
	}}
	plan := &stubPlanner{
		failFor: "u2",
		results: map[string]planner.PlanResult{
			"u1": {Planned: 2},
			"u3": {Planned: 1, Leftover: 2},
		},
	}
	out := &captureQueue{}
	s := newTestService(store, plan, out)

	s.runAutoPlanSweep(context.Background(), time.Now())
	got := out.texts()
	if len(got) != 2 {
		t.Fatalf("sent = %v, want messages for u1 and u3 only", got)
	}
	if !strings.Contains(got[1], "2 didn't fit") {
		t.Fatalf("leftover text = %q", got[1])
	}
}

func TestDailyDigest(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	store := &stubStore{
		linked: []storage.User{linkedUser("u1", 100), linkedUser("u2", 200)},
		planned: map[string][]planner.Task{
			"u1": {{ID: "t1", UserID: "u1", Title: "Standup", DurationMinutes: 30, StartAt: &start}},
		},
	}
	out := &captureQueue{}
	s := newTestService(store, &stubPlanner{}, out)

	s.runDailyDigest(context.Background(), start)
	got := out.texts()
	if len(got) != 2 {
		t.Fatalf("sent = %v, want digest for both users", got)
	}
	if !strings.Contains(got[0], "09:00 Standup (30 min)") {
		t.Fatalf("digest = %q", got[0])
	}
	if !strings.Contains(got[1], "Nothing planned yet") {
		t.Fatalf("empty digest = %q", got[1])
	}
}

func TestJobSpecsParse(t *testing.T) {
	cfg := Config{}.withDefaults()
	for name, spec := range map[string]string{
		"daily_plan":   cfg.DailyPlan,
		"gap_reminder": cfg.GapReminders,
		"overdue":      cfg.Overdue,
		"auto_plan":    cfg.AutoPlan,
		"pre_start":    preStartSpec,
	} {
		if _, err := cronParser.Parse(spec); err != nil {
			t.Fatalf("%s spec %q: %v", name, spec, err)
		}
	}
}
