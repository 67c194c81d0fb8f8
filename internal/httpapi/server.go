// Package httpapi is the JSON API: auth, task CRUD, planning, and Telegram
// account linking.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"dayplan/internal/planner"
	"dayplan/internal/storage"
	logx "dayplan/pkg/logx"
)

type Config struct {
	Addr        string // default: "127.0.0.1:8080"
	JWTSecret   string
	CORSOrigins []string      // default: "*"
	TokenTTL    time.Duration // default: 24h
}

// Store is the slice of the storage layer the API needs.
type Store interface {
	CreateUser(ctx context.Context, u storage.User) (storage.User, error)
	UserByEmail(ctx context.Context, email string) (storage.User, error)
	UserByID(ctx context.Context, id string) (storage.User, error)
	SetLinkCode(ctx context.Context, userID, code string) error
	SetAutoPlan(ctx context.Context, userID string, enabled bool) error
	ListTasks(ctx context.Context, userID string) ([]planner.Task, error)
	SetStatus(ctx context.Context, userID, id string, status planner.Status) (planner.Task, error)
}

// Planner is the scheduling surface the API calls into.
type Planner interface {
	CreateTask(ctx context.Context, userID string, in planner.TaskInput) (planner.Task, error)
	AutoPlan(ctx context.Context, userID string, date time.Time) (planner.PlanResult, error)
	FindGaps(ctx context.Context, userID string, date time.Time) ([]planner.Gap, error)
}

type Server struct {
	cfg      Config
	log      logx.Logger
	store    Store
	plan     Planner
	windowFn func() planner.Window

	httpServer *http.Server
}

func NewServer(cfg Config, store Store, plan Planner, windowFn func() planner.Window, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Server{cfg: cfg, log: log, store: store, plan: plan, windowFn: windowFn}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      c.Handler(s.router()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/auth/me", s.handleMe)
			r.Post("/link", s.handleLink)
			r.Post("/autoplan", s.handleSetAutoPlan)

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.handleListTasks)
				r.Post("/", s.handleCreateTask)
				r.Post("/plan", s.handlePlan)
				r.Get("/gaps", s.handleGaps)
				r.Patch("/{taskID}/done", s.handleMarkDone)
			})
		})
	})
	return r
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until Shutdown. http.ErrServerClosed is swallowed.
func (s *Server) Start() error {
	s.log.Info("http server listening", logx.String("addr", s.cfg.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// today returns the current moment in the planner's working timezone.
func (s *Server) today() time.Time {
	loc := s.windowFn().Location
	if loc == nil {
		loc = time.Local
	}
	return time.Now().In(loc)
}
