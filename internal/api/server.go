package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openlead/kestrel/internal/domain"
)

// Server is the HTTP server for the Kestrel API.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server with routes and middleware configured.
func NewServer(cfg domain.ServerConfig, handler *Handler) *Server {
	router := chi.NewRouter()

	// Global middleware (order matters)
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Health endpoints live outside the tenant scope so probes
	// don't need an X-Tenant-ID header.
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Tenant-scoped API
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Post("/score", handler.ScoreRecord)
		r.Post("/batch", handler.ScoreBatch)
		r.Post("/mutate", handler.Mutate)

		r.Get("/configs", handler.ListConfigs)
		r.Post("/configs", handler.SaveConfig)
		r.Post("/configs/reload", handler.ReloadConfig)
		r.Get("/configs/{name}", handler.GetConfig)

		r.Put("/records/{id}", handler.SaveRecord)
		r.Get("/records/{id}", handler.GetRecord)
		r.Get("/reports/{id}", handler.GetReport)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		router:  router,
		handler: handler,
		server:  srv,
		config:  cfg,
	}
}

// Start begins serving HTTP requests. Blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("api server shutting down")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router, useful for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the underlying API handler.
func (s *Server) Handler() *Handler {
	return s.handler
}
