package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"dayplan/internal/planner"
	logx "dayplan/pkg/logx"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps planner/storage errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case planner.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case planner.IsOverlap(err):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, planner.ErrConflict):
		writeError(w, http.StatusConflict, "slot was taken by a concurrent update")
	case errors.Is(err, planner.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.log.Error(op+" failed", logx.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// taskJSON is the wire shape of a task.
type taskJSON struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	DurationMinutes int        `json:"duration_minutes"`
	Planned         bool       `json:"planned"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toTaskJSON(t planner.Task) taskJSON {
	return taskJSON{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		Priority:        string(t.Priority),
		Status:          string(t.Status),
		DurationMinutes: t.DurationMinutes,
		Planned:         t.Planned,
		StartAt:         t.StartAt,
		EndAt:           t.EndAt,
		DueAt:           t.DueAt,
		CreatedAt:       t.CreatedAt,
	}
}

func toTaskListJSON(tasks []planner.Task) []taskJSON {
	out := make([]taskJSON, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskJSON(t))
	}
	return out
}
