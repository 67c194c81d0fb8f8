package planner

import (
	"context"
	"time"

	logx "dayplan/pkg/logx"
)

// AutoPlan assigns backlog tasks into today's gaps by priority, first-fit.
//
// Each successful placement is committed before the next backlog task is
// considered, and the consumed gap is shrunk in place so later tasks can use
// its remainder. A placement the store rejects (racing writer, transient
// failure) is skipped and the run continues; the task stays in the backlog.
func (s *Service) AutoPlan(ctx context.Context, userID string, date time.Time) (PlanResult, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	gaps, err := s.FindGaps(ctx, userID, date)
	if err != nil {
		return PlanResult{}, err
	}
	backlog, err := s.SelectBacklog(ctx, userID)
	if err != nil {
		return PlanResult{}, err
	}

	var res PlanResult
	for _, t := range backlog {
		if t.DurationMinutes <= 0 {
			// Cannot be placed; leave it in the backlog.
			continue
		}
		for gi := range gaps {
			g := &gaps[gi]
			if g.DurationMinutes < t.DurationMinutes {
				continue
			}

			start := g.Start
			end := start.Add(time.Duration(t.DurationMinutes) * time.Minute)
			placed, err := s.store.UpdatePlacement(ctx, t.ID, start, end)
			if err != nil {
				// One bad placement must not abort the whole run.
				res.PartialFailures++
				s.log.Warn("placement failed; task stays in backlog",
					logx.String("user_id", userID),
					logx.String("task_id", t.ID),
					logx.Time("start", start),
					logx.Err(err))
				break
			}

			// Consume the head of the gap; the remainder stays usable.
			g.Start = end
			g.DurationMinutes -= t.DurationMinutes
			res.Placed = append(res.Placed, placed)
			break
		}
	}

	res.Planned = len(res.Placed)
	res.Leftover = len(backlog) - res.Planned
	if res.Planned > 0 || res.PartialFailures > 0 {
		s.log.Info("auto-plan finished",
			logx.String("user_id", userID),
			logx.Int("planned", res.Planned),
			logx.Int("leftover", res.Leftover),
			logx.Int("failed", res.PartialFailures))
	}
	return res, nil
}
