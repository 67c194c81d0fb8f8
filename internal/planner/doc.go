// Package planner implements the daily auto-scheduling engine.
//
// The engine computes free time slots ("gaps") in a user's working day from
// the already-planned tasks, and greedily assigns unplanned backlog tasks
// into those gaps by priority (first-fit, not best-fit). It is shared by the
// HTTP API, the Telegram bot commands, and the background jobs.
//
// # Scheduling model
//
// One AutoPlan invocation is a strictly sequential read-then-write pass:
// gap computation, backlog selection, then one committed placement per fitted
// task. The engine provides no cross-invocation mutual exclusion beyond a
// per-user lock inside the Service; the storage layer additionally rejects
// conflicting placements atomically, and a rejected placement is skipped
// rather than aborting the run.
//
// # Slot blocking
//
// Only active planned tasks (status != DONE) block a slot. A completed task
// keeps its recorded start/end but its former slot becomes available for
// re-planning.
package planner
