package telegram

import (
	"fmt"
	"strings"
	"time"

	"dayplan/internal/planner"
)

func priorityIcon(p planner.Priority) string {
	switch p {
	case planner.PriorityImportant:
		return "🔴"
	case planner.PriorityFuture:
		return "🔵"
	default:
		return "🟠"
	}
}

func fmtClock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

// formatDay renders the /today reply: the planned schedule followed by
// unplanned IMPORTANT backlog items.
func formatDay(tasks []planner.Task, backlog []planner.Task, loc *time.Location) string {
	var sb strings.Builder
	if len(tasks) == 0 {
		sb.WriteString("Nothing planned today. Run /plan to fill your free slots.")
	} else {
		sb.WriteString("Today:\n")
		for _, t := range tasks {
			if t.StartAt == nil {
				continue
			}
			mark := priorityIcon(t.Priority)
			if t.Status == planner.StatusDone {
				mark = "✅"
			}
			fmt.Fprintf(&sb, "%s %s  %s (%d min)\n",
				mark, fmtClock(*t.StartAt, loc), t.Title, t.DurationMinutes)
		}
	}

	var important []planner.Task
	for _, t := range backlog {
		if t.Priority == planner.PriorityImportant {
			important = append(important, t)
		}
	}
	if len(important) > 0 {
		sb.WriteString("\nImportant, not yet planned:\n")
		for _, t := range important {
			fmt.Fprintf(&sb, "🔴 %s (%d min)\n", t.Title, t.DurationMinutes)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatGaps(gaps []planner.Gap, loc *time.Location) string {
	if len(gaps) == 0 {
		return "No free slots left today."
	}
	var sb strings.Builder
	sb.WriteString("Free slots today:\n")
	for _, g := range gaps {
		fmt.Fprintf(&sb, "• %s–%s (%d min)\n",
			fmtClock(g.Start, loc), fmtClock(g.End, loc), g.DurationMinutes)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatPlanResult(res planner.PlanResult) string {
	switch {
	case res.Planned == 0 && res.Leftover == 0:
		return "Backlog is empty, nothing to plan. Add tasks with /add."
	case res.Planned == 0:
		return fmt.Sprintf("No free slot fits any of your %d backlog tasks today.", res.Leftover)
	case res.Leftover == 0:
		return fmt.Sprintf("Planned %d tasks. Your day is set, see /today.", res.Planned)
	default:
		return fmt.Sprintf("Planned %d tasks, %d didn't fit today.", res.Planned, res.Leftover)
	}
}
