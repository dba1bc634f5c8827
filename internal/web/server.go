// Package web exposes the recognition pipeline over HTTP: registration,
// single-frame recognition, attendance queries and operational endpoints.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amosdev/attendance/internal/gallery"
	"github.com/amosdev/attendance/internal/recognizer"
	"github.com/amosdev/attendance/internal/store"
)

// Server wires the HTTP surface to the recognizer.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	rec   *recognizer.Recognizer
	cache *gallery.Cache
	store store.Store
}

// NewServer creates the web server.
func NewServer(rec *recognizer.Recognizer, cache *gallery.Cache, st store.Store, host string, port int) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		rec:    rec,
		cache:  cache,
		store:  st,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", HealthCheck)
	s.router.Get("/api/v1/health", HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/register", s.Register)
		r.Post("/recognize", s.Recognize)

		r.Get("/users", s.ListUsers)
		r.Get("/attendance", s.ListAttendance)
		r.Get("/stats", s.Stats)

		r.Get("/cache/status", s.CacheStatus)
		r.Post("/cache/sweep", s.CacheSweep)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
