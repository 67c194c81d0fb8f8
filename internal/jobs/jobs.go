package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dayplan/internal/planner"
	"dayplan/internal/storage"
	logx "dayplan/pkg/logx"
)

// reminder_log kinds
const (
	kindPreStart = "pre_start"
)

// runDailyDigest sends every linked user their schedule for the day, or a
// nudge when nothing is planned yet.
func (s *Service) runDailyDigest(ctx context.Context, now time.Time) {
	s.forEachLinked(ctx, "daily_plan", func(u storage.User) error {
		from, to := dayBounds(now)
		tasks, err := s.store.ListPlannedBetween(ctx, u.ID, from, to)
		if err != nil {
			return err
		}
		return s.out.Send(ctx, u.TelegramChatID, digestText(tasks, s.location()))
	})
}

// runGapReminder pings users who still have a free slot ahead of them today.
func (s *Service) runGapReminder(ctx context.Context, now time.Time) {
	s.forEachLinked(ctx, "gap_reminder", func(u storage.User) error {
		gaps, err := s.plan.FindGaps(ctx, u.ID, now)
		if err != nil {
			return err
		}
		g, ok := firstFutureGap(gaps, now)
		if !ok {
			return nil
		}
		text := fmt.Sprintf("You have a free slot %s–%s (%d min). /plan fills it from your backlog.",
			g.Start.In(s.location()).Format("15:04"),
			g.End.In(s.location()).Format("15:04"),
			g.DurationMinutes)
		return s.out.Send(ctx, u.TelegramChatID, text)
	})
}

// runOverdue sends the evening list of tasks whose due time has passed.
func (s *Service) runOverdue(ctx context.Context, now time.Time) {
	s.forEachLinked(ctx, "overdue", func(u storage.User) error {
		tasks, err := s.store.ListOverdue(ctx, u.ID, now)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		var sb strings.Builder
		sb.WriteString("Overdue:\n")
		for _, t := range tasks {
			fmt.Fprintf(&sb, "• %s (due %s)\n", t.Title, t.DueAt.In(s.location()).Format("Jan 2 15:04"))
		}
		return s.out.Send(ctx, u.TelegramChatID, strings.TrimRight(sb.String(), "\n"))
	})
}

// runPreStart reminds about tasks starting in 30 minutes. The reminder log
// keeps reruns and restarts from double-sending.
func (s *Service) runPreStart(ctx context.Context, now time.Time) {
	from := now.Add(30 * time.Minute).Truncate(time.Minute)
	to := from.Add(time.Minute)
	tasks, err := s.store.ListStartingBetween(ctx, from, to)
	if err != nil {
		s.log.Error("pre_start query failed", logx.Any("err", err))
		return
	}
	for _, t := range tasks {
		fresh, err := s.store.MarkReminded(ctx, t.ID, kindPreStart)
		if err != nil {
			s.log.Error("pre_start dedup failed", logx.String("task_id", t.ID), logx.Any("err", err))
			continue
		}
		if !fresh {
			continue
		}
		u, err := s.store.UserByID(ctx, t.UserID)
		if err != nil || u.TelegramChatID == 0 {
			continue
		}
		text := fmt.Sprintf("⏰ In 30 minutes: %s (%s)",
			t.Title, t.StartAt.In(s.location()).Format("15:04"))
		if err := s.out.Send(ctx, u.TelegramChatID, text); err != nil {
			s.log.Warn("pre_start send failed", logx.String("task_id", t.ID), logx.Any("err", err))
		}
	}
}

// runAutoPlanSweep plans the day for every user who opted in. Users are
// planned independently; one failure never aborts the sweep.
func (s *Service) runAutoPlanSweep(ctx context.Context, now time.Time) {
	users, err := s.store.ListAutoPlanUsers(ctx)
	if err != nil {
		s.log.Error("auto_plan user list failed", logx.Any("err", err))
		return
	}
	for _, u := range users {
		res, err := s.plan.AutoPlan(ctx, u.ID, now)
		if err != nil {
			s.log.Error("auto_plan failed",
				logx.String("user_id", u.ID), logx.Any("err", err))
			continue
		}
		if u.TelegramChatID == 0 || res.Planned == 0 {
			continue
		}
		text := fmt.Sprintf("Auto-planned %d tasks for today.", res.Planned)
		if res.Leftover > 0 {
			text = fmt.Sprintf("Auto-planned %d tasks for today, %d didn't fit.", res.Planned, res.Leftover)
		}
		if err := s.out.Send(ctx, u.TelegramChatID, text); err != nil {
			s.log.Warn("auto_plan send failed", logx.String("user_id", u.ID), logx.Any("err", err))
		}
	}
}

// forEachLinked runs fn per linked user, isolating per-user failures.
func (s *Service) forEachLinked(ctx context.Context, job string, fn func(u storage.User) error) {
	users, err := s.store.ListLinkedUsers(ctx)
	if err != nil {
		s.log.Error("user list failed", logx.String("job", job), logx.Any("err", err))
		return
	}
	for _, u := range users {
		if u.TelegramChatID == 0 {
			continue
		}
		if err := fn(u); err != nil {
			s.log.Error("job failed for user",
				logx.String("job", job), logx.String("user_id", u.ID), logx.Any("err", err))
		}
	}
}

// firstFutureGap returns the earliest gap that has not fully passed yet.
func firstFutureGap(gaps []planner.Gap, now time.Time) (planner.Gap, bool) {
	for _, g := range gaps {
		if g.End.After(now) {
			return g, true
		}
	}
	return planner.Gap{}, false
}

func digestText(tasks []planner.Task, loc *time.Location) string {
	if len(tasks) == 0 {
		return "Good morning! Nothing planned yet. Send /plan to fill your day from the backlog."
	}
	var sb strings.Builder
	sb.WriteString("Good morning! Today:\n")
	for _, t := range tasks {
		if t.StartAt == nil {
			continue
		}
		fmt.Fprintf(&sb, "• %s %s (%d min)\n",
			t.StartAt.In(loc).Format("15:04"), t.Title, t.DurationMinutes)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func dayBounds(now time.Time) (from, to time.Time) {
	from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return from, from.Add(24 * time.Hour)
}
