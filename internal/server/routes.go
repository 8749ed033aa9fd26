package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.AllowedOrigins),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         86400,
	}))

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	r.Get("/caption-styles", h.CaptionStyles)
	r.Post("/render", h.Render)
	r.Route("/renders", func(r chi.Router) {
		r.Get("/", h.ListJobs)
		r.Get("/{id}", h.GetJob)
		r.Get("/{id}/log", h.GetLog)
	})

	return r
}

func allowedOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if s := strings.TrimSpace(o); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
