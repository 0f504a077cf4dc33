// Package httpapi exposes the REST API under /api.
package httpapi

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"timeblocker/internal/service"
)

// Services are the use cases the API serves.
type Services struct {
	Auth       *service.AuthService
	Tasks      *service.TaskService
	Blocks     *service.TimeBlockService
	Categories *service.CategoryService
	Demo       *service.DemoService
}

// Server holds the HTTP surface.
type Server struct {
	svc      Services
	logger   *log.Logger
	validate *validator.Validate
	origins  []string
	now      func() time.Time
}

func New(svc Services, logger *log.Logger, origins []string) *Server {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{svc: svc, logger: logger, validate: v, origins: origins, now: time.Now}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID, s.recoverer, s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)
		r.Post("/auth/demo", s.demoLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/auth/push-subscription", s.pushSubscription)
			r.Get("/auth/me", s.me)
			r.Patch("/auth/me", s.updateMe)

			r.Get("/tasks", s.listTasks)
			r.Post("/tasks", s.createTask)
			r.Get("/tasks/{id}", s.getTask)
			r.Patch("/tasks/{id}", s.updateTask)
			r.Delete("/tasks/{id}", s.deleteTask)

			r.Get("/day-view", s.dayView)
			r.Post("/timeblocks", s.createBlock)
			r.Patch("/timeblocks/{id}", s.updateBlock)
			r.Delete("/timeblocks/{id}", s.deleteBlock)

			r.Get("/categories", s.listCategories)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}
