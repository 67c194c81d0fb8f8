// Package jobs runs the scheduled background work: the morning digest, gap
// and overdue reminders, pre-start pings, and the opt-in auto-plan sweep.
package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dayplan/internal/planner"
	"dayplan/internal/storage"
	logx "dayplan/pkg/logx"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Config carries the cron specs. Empty fields keep the defaults.
type Config struct {
	DailyPlan    string // default: "0 8 * * *"
	GapReminders string // default: "0 10,12,14,16,18 * * *"
	Overdue      string // default: "0 20 * * *"
	AutoPlan     string // default: "0 8 * * *"
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.DailyPlan) == "" {
		c.DailyPlan = "0 8 * * *"
	}
	if strings.TrimSpace(c.GapReminders) == "" {
		c.GapReminders = "0 10,12,14,16,18 * * *"
	}
	if strings.TrimSpace(c.Overdue) == "" {
		c.Overdue = "0 20 * * *"
	}
	if strings.TrimSpace(c.AutoPlan) == "" {
		c.AutoPlan = "0 8 * * *"
	}
	return c
}

// preStartSpec fires every minute; the reminder window does the selection.
const preStartSpec = "* * * * *"

// Store is the slice of the storage layer the jobs need.
type Store interface {
	ListLinkedUsers(ctx context.Context) ([]storage.User, error)
	ListAutoPlanUsers(ctx context.Context) ([]storage.User, error)
	UserByID(ctx context.Context, id string) (storage.User, error)
	ListPlannedBetween(ctx context.Context, userID string, from, to time.Time) ([]planner.Task, error)
	ListOverdue(ctx context.Context, userID string, now time.Time) ([]planner.Task, error)
	ListStartingBetween(ctx context.Context, from, to time.Time) ([]planner.Task, error)
	MarkReminded(ctx context.Context, taskID, kind string) (bool, error)
}

// Planner is the scheduling surface the jobs call into.
type Planner interface {
	AutoPlan(ctx context.Context, userID string, date time.Time) (planner.PlanResult, error)
	FindGaps(ctx context.Context, userID string, date time.Time) ([]planner.Gap, error)
}

// Queue is the outbound message pipeline (implemented by notify.Service).
type Queue interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Service struct {
	cfg      Config
	log      logx.Logger
	store    Store
	plan     Planner
	out      Queue
	windowFn func() planner.Window

	cron *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	running bool
}

func New(cfg Config, store Store, plan Planner, out Queue, windowFn func() planner.Window, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		log:      log,
		store:    store,
		plan:     plan,
		out:      out,
		windowFn: windowFn,
	}
}

func (s *Service) location() *time.Location {
	loc := s.windowFn().Location
	if loc == nil {
		loc = time.Local
	}
	return loc
}

// Start schedules all jobs and begins the cron loop. It returns the first
// spec parse error, if any; valid jobs registered before it still run.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.ctx = ctx
	s.cron = cron.New(cron.WithParser(cronParser), cron.WithLocation(s.location()))

	var firstErr error
	add := func(name, spec string, fn func(ctx context.Context, now time.Time)) {
		if _, err := s.cron.AddFunc(spec, s.wrap(name, fn)); err != nil {
			s.log.Error("job spec invalid",
				logx.String("job", name), logx.String("spec", spec), logx.Any("err", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	add("daily_plan", s.cfg.DailyPlan, s.runDailyDigest)
	add("gap_reminder", s.cfg.GapReminders, s.runGapReminder)
	add("overdue", s.cfg.Overdue, s.runOverdue)
	add("pre_start", preStartSpec, s.runPreStart)
	add("auto_plan", s.cfg.AutoPlan, s.runAutoPlanSweep)

	s.cron.Start()
	s.running = true
	s.log.Info("jobs started", logx.String("tz", s.location().String()))
	return firstErr
}

// Stop halts scheduling and waits for in-flight jobs up to the ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()
	if c == nil {
		return
	}
	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("jobs stop timed out")
	}
}

// wrap bounds each run and keeps a panicking job from killing the process.
func (s *Service) wrap(name string, fn func(ctx context.Context, now time.Time)) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("job panicked", logx.String("job", name), logx.Any("panic", r))
			}
		}()
		s.mu.Lock()
		base := s.ctx
		s.mu.Unlock()
		if base == nil {
			base = context.Background()
		}
		ctx, cancel := context.WithTimeout(base, 2*time.Minute)
		defer cancel()

		start := time.Now()
		fn(ctx, start.In(s.location()))
		s.log.Debug("job finished",
			logx.String("job", name), logx.Duration("took", time.Since(start)))
	}
}
