package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"dayplan/internal/planner"
	"dayplan/internal/storage"
	logx "dayplan/pkg/logx"
)

type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Timezone string `json:"timezone,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	if body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}
	if len(body.Password) < 8 {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		s.writeDomainError(w, "hash password", err)
		return
	}
	u, err := s.store.CreateUser(r.Context(), storage.User{
		Name:         strings.TrimSpace(body.Name),
		Email:        body.Email,
		PasswordHash: string(hash),
		Timezone:     strings.TrimSpace(body.Timezone),
	})
	if err != nil {
		// Unique email violation surfaces as a driver error; don't leak it.
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	s.log.Info("user registered", logx.String("user_id", u.ID))
	s.respondToken(w, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	u, err := s.store.UserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(body.Email)))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(body.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.respondToken(w, u)
}

func (s *Server) respondToken(w http.ResponseWriter, u storage.User) {
	token, err := generateToken([]byte(s.cfg.JWTSecret), u.ID, s.cfg.TokenTTL)
	if err != nil {
		s.writeDomainError(w, "sign token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": u.ID,
		"token":   token,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := s.store.UserByID(r.Context(), uid)
	if err != nil {
		s.writeDomainError(w, "load user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":         u.ID,
		"name":            u.Name,
		"email":           u.Email,
		"timezone":        u.Timezone,
		"telegram_linked": u.TelegramChatID != 0,
		"auto_plan":       u.AutoPlan,
	})
}

// handleLink issues a fresh one-time code for /start <code> in the bot.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromContext(r.Context())
	code, err := newLinkCode()
	if err != nil {
		s.writeDomainError(w, "generate link code", err)
		return
	}
	if err := s.store.SetLinkCode(r.Context(), uid, code); err != nil {
		s.writeDomainError(w, "store link code", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

// handleSetAutoPlan toggles the daily auto-plan sweep for the caller.
func (s *Server) handleSetAutoPlan(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromContext(r.Context())
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.store.SetAutoPlan(r.Context(), uid, body.Enabled); err != nil {
		s.writeDomainError(w, "set auto-plan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"auto_plan": body.Enabled})
}

func newLinkCode() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return strings.ToUpper(fmt.Sprintf("%x", b)), nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromContext(r.Context())
	tasks, err := s.store.ListTasks(r.Context(), uid)
	if err != nil {
		s.writeDomainError(w, "list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": toTaskListJSON(tasks)})
}

type createTaskRequest struct {
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Priority        string     `json:"priority,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	DueAt           *time.Time `json:"due_at,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromContext(r.Context())
	var body createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	task, err := s.plan.CreateTask(r.Context(), uid, planner.TaskInput{
		Title:           body.Title,
		Description:     body.Description,
		Priority:        planner.Priority(body.Priority),
		DurationMinutes: body.DurationMinutes,
		StartAt:         body.StartAt,
		DueAt:           body.DueAt,
	})
	if err != nil {
		s.writeDomainError(w, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskJSON(task))
}

func (s *Server) handleMarkDone(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromContext(r.Context())
	taskID := chi.URLParam(r, "taskID")
	task, err := s.store.SetStatus(r.Context(), uid, taskID, planner.StatusDone)
	if err != nil {
		s.writeDomainError(w, "mark done", err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskJSON(task))
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromContext(r.Context())
	date, err := s.dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.plan.AutoPlan(r.Context(), uid, date)
	if err != nil {
		s.writeDomainError(w, "auto-plan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGaps(w http.ResponseWriter, r *http.Request) {
	uid, _ := userIDFromContext(r.Context())
	date, err := s.dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	gaps, err := s.plan.FindGaps(r.Context(), uid, date)
	if err != nil {
		s.writeDomainError(w, "find gaps", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gaps": gaps})
}

// dateParam reads an optional ?date=YYYY-MM-DD, defaulting to today in the
// planner's working timezone.
func (s *Server) dateParam(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return s.today(), nil
	}
	loc := s.windowFn().Location
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return d, nil
}
