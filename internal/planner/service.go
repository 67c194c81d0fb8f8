package planner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "dayplan/pkg/logx"
)

// Service exposes the scheduling engine to the bot, the HTTP API and the
// background jobs. It is safe for concurrent use; mutating operations for the
// same user are serialized through a per-user lock so two concurrent plans
// cannot both fill the same gap from a stale snapshot.
type Service struct {
	store Store
	log   logx.Logger

	// windowFn resolves the current working window per invocation so config
	// hot-reloads take effect without recreating the service.
	windowFn func() Window

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func New(store Store, windowFn func() Window, log logx.Logger) *Service {
	if windowFn == nil {
		windowFn = DefaultWindow
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:    store,
		log:      log,
		windowFn: windowFn,
		users:    map[string]*sync.Mutex{},
	}
}

// lockUser acquires the per-user mutex and returns its unlock func.
// Locks are never removed; the user population is small and bounded.
func (s *Service) lockUser(userID string) func() {
	s.mu.Lock()
	l := s.users[userID]
	if l == nil {
		l = &sync.Mutex{}
		s.users[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) window() Window { return s.windowFn() }

// HasOverlap reports whether [start, end) collides with an active planned
// task of the user. excludeID (optional) skips one task, typically the one
// being edited. It only reports; resolution is the caller's responsibility.
func (s *Service) HasOverlap(ctx context.Context, userID string, start, end time.Time, excludeID string) (bool, error) {
	t, err := s.store.FindOverlap(ctx, userID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return t != nil, nil
}

// CreateTask validates input and persists a new task. With an explicit start
// time the task is created pre-planned after an overlap check; otherwise it
// lands in the backlog.
func (s *Service) CreateTask(ctx context.Context, userID string, in TaskInput) (Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Task{}, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if in.DurationMinutes <= 0 {
		return Task{}, &ValidationError{Field: "duration_minutes", Reason: "must be positive"}
	}
	prio := in.Priority
	if prio == "" {
		prio = PriorityNormal
	}
	if !prio.Valid() {
		return Task{}, &ValidationError{Field: "priority", Reason: "must be IMPORTANT, NORMAL or FUTURE"}
	}

	now := time.Now()
	t := Task{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           title,
		Description:     strings.TrimSpace(in.Description),
		Priority:        prio,
		Status:          StatusTodo,
		DurationMinutes: in.DurationMinutes,
		DueAt:           in.DueAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if in.StartAt == nil {
		return s.store.CreateTask(ctx, t)
	}

	// Pre-planned creation races with AutoPlan for the same user; hold the
	// user lock across check and insert.
	unlock := s.lockUser(userID)
	defer unlock()

	start := *in.StartAt
	end := start.Add(time.Duration(in.DurationMinutes) * time.Minute)
	conflict, err := s.store.FindOverlap(ctx, userID, start, end, "")
	if err != nil {
		return Task{}, err
	}
	if conflict != nil {
		return Task{}, &OverlapError{Start: start, End: end, With: conflict}
	}

	t.Planned = true
	t.StartAt = &start
	t.EndAt = &end
	return s.store.CreateTask(ctx, t)
}
