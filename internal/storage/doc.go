// Package storage persists users and tasks in SQLite.
//
// It implements the planner's Store contract plus the wider query surface the
// bot, the HTTP API and the background jobs need. Placement updates run as a
// transactional check-then-write so a racing writer gets planner.ErrConflict
// instead of silently double-booking a slot.
//
// Timestamps are stored as Unix milliseconds (UTC); NULL means unset.
package storage
