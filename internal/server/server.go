package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/skulicheck/skulicheck-be/internal/config"
	"github.com/skulicheck/skulicheck-be/internal/http/handlers"
	"github.com/skulicheck/skulicheck-be/internal/metrics"
	"github.com/skulicheck/skulicheck-be/internal/middleware"
	"github.com/skulicheck/skulicheck-be/internal/service"
	"github.com/skulicheck/skulicheck-be/internal/storage"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, svc *service.AuthService, store storage.Store, m *metrics.Metrics, logger *zap.Logger) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           Routes(cfg.AllowedOrigins(), svc, store, m, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Code emails are sent inline, so leave room for a slow SMTP dial.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{inner: httpServer}
}

// Routes builds the HTTP handler tree. db backs the /health readiness check.
func Routes(origins []string, svc *service.AuthService, db handlers.Pinger, m *metrics.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(origins))
	r.Use(m.Middleware)

	handlers.NewHealthHandler(time.Now(), db).Register(r)
	handlers.NewAuthHandler(svc).Register(r)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	return r
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
