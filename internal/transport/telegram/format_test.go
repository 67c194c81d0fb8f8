package telegram

import (
	"strings"
	"testing"
	"time"

	"dayplan/internal/planner"
)

func ts(h, m int) *time.Time {
	t := time.Date(2026, 3, 14, h, m, 0, 0, time.UTC)
	return &t
}

func TestFormatDay(t *testing.T) {
	tasks := []planner.Task{
		{Title: "Standup", Priority: planner.PriorityNormal, Status: planner.StatusDone, DurationMinutes: 30, StartAt: ts(9, 0)},
		{Title: "Write report", Priority: planner.PriorityImportant, Status: planner.StatusTodo, DurationMinutes: 60, StartAt: ts(10, 0)},
	}
	backlog := []planner.Task{
		{Title: "Call bank", Priority: planner.PriorityImportant, DurationMinutes: 15},
		{Title: "Read book", Priority: planner.PriorityFuture, DurationMinutes: 45},
	}

	out := formatDay(tasks, backlog, time.UTC)
	for _, want := range []string{
		"✅ 09:00  Standup (30 min)",
		"🔴 10:00  Write report (60 min)",
		"Important, not yet planned:",
		"🔴 Call bank (15 min)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Read book") {
		t.Fatalf("future backlog leaked into /today:\n%s", out)
	}
}

func TestFormatDayEmpty(t *testing.T) {
	out := formatDay(nil, nil, time.UTC)
	if !strings.Contains(out, "Nothing planned") {
		t.Fatalf("unexpected empty-day text: %q", out)
	}
}

func TestFormatGaps(t *testing.T) {
	gaps := []planner.Gap{
		{Start: *ts(8, 0), End: *ts(9, 30), DurationMinutes: 90},
	}
	out := formatGaps(gaps, time.UTC)
	if !strings.Contains(out, "08:00–09:30 (90 min)") {
		t.Fatalf("gap line missing in: %q", out)
	}
	if got := formatGaps(nil, time.UTC); !strings.Contains(got, "No free slots") {
		t.Fatalf("empty gaps text: %q", got)
	}
}

func TestFormatPlanResult(t *testing.T) {
	cases := []struct {
		res  planner.PlanResult
		want string
	}{
		{planner.PlanResult{}, "Backlog is empty"},
		{planner.PlanResult{Leftover: 3}, "No free slot fits"},
		{planner.PlanResult{Planned: 2}, "Planned 2 tasks. Your day is set"},
		{planner.PlanResult{Planned: 2, Leftover: 1}, "2 tasks, 1 didn't fit"},
	}
	for _, tc := range cases {
		if got := formatPlanResult(tc.res); !strings.Contains(got, tc.want) {
			t.Fatalf("formatPlanResult(%+v) = %q, want substring %q", tc.res, got, tc.want)
		}
	}
}
