// Package web provides the HTTP server, HTML pages and JSON API of the
// entry form.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foodform/foodform/internal/config"
	"github.com/foodform/foodform/internal/core"
	appmw "github.com/foodform/foodform/internal/web/middleware"
)

// Server is the HTTP server for the entry form.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	limiters []*appmw.RateLimiter
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(appmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(appmw.SecurityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.rateLimit(s.cfg.Rate.RequestsPerMinute))
	}
}

// rateLimit returns a per-IP limiter allowing perMinute requests.
func (s *Server) rateLimit(perMinute int) func(http.Handler) http.Handler {
	rl := appmw.NewRateLimiter(perMinute, time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl.Handler(func(w http.ResponseWriter, r *http.Request) {
		s.respondMessage(w, r, http.StatusTooManyRequests, core.UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		})
	})
}

// uploadLimit is the stricter limit for import endpoints.
func (s *Server) uploadLimit() func(http.Handler) http.Handler {
	if !s.cfg.Rate.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.rateLimit(s.cfg.Rate.UploadLimit)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	uploadLimit := s.uploadLimit()

	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.Get("/", s.handleIndex)
	s.router.Route("/tables/{table}", func(r chi.Router) {
		r.Get("/", s.handleTablePage)
		r.Post("/records", s.handleCreateForm)
		r.Get("/records/{id}/edit", s.handleEditPage)
		r.Post("/records/{id}", s.handleUpdateForm)
		r.Post("/records/{id}/delete", s.handleDeleteForm)
		r.Post("/records/{id}/restore", s.handleRestoreForm)
		r.With(uploadLimit).Post("/import/preview", s.handleImportPreviewForm)
	})
	s.router.Get("/imports/{importID}", s.handleImportPage)
	s.router.Post("/imports/{importID}/commit", s.handleImportCommitForm)
	s.router.Post("/imports/{importID}/discard", s.handleImportDiscardForm)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/tables", s.handleListTables)

		r.Route("/tables/{table}", func(r chi.Router) {
			r.Get("/", s.handleGetTable)
			r.Get("/records", s.handleListRecords)
			r.Post("/records", s.handleCreateRecord)
			r.Get("/records/{id}", s.handleGetRecord)
			r.Patch("/records/{id}", s.handleUpdateRecord)
			r.Delete("/records/{id}", s.handleDeleteRecord)
			r.Post("/records/{id}/restore", s.handleRestoreRecord)

			r.With(uploadLimit).Post("/import", s.handleImport)
			r.Get("/export", s.handleExport)
			r.Get("/template", s.handleTemplate)
		})

		r.Get("/imports/{importID}", s.handleGetImport)
		r.Post("/imports/{importID}/commit", s.handleCommitImport)
		r.Delete("/imports/{importID}", s.handleDiscardImport)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server and its rate limiters.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.Close()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
