// Package server runs the Slack events endpoint as a long-lived HTTP server.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kbbot/internal/metrics"
)

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	EventsPath  string       // where Slack posts events
	Events      http.Handler // usually a *slackapp.App
	MetricsPath string       // empty disables /metrics
	Registry    *metrics.Registry
	// Health is consulted by /healthz when set.
	Health func(ctx context.Context) error
	Logger *slog.Logger
}

// Server serves Slack events plus health and metrics endpoints.
type Server struct {
	cfg        Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.EventsPath == "" {
		cfg.EventsPath = "/slack/events"
	}
	if cfg.Registry == nil {
		cfg.Registry = metrics.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.MetricsPath != "" {
		r.Get(s.cfg.MetricsPath, s.cfg.Registry.Handler())
	}
	// Non-POST methods reach the app so it can answer 405 itself.
	r.Handle(s.cfg.EventsPath, s.cfg.Events)

	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("kbbot server listening", "addr", s.Addr(), "events", s.cfg.EventsPath, "metrics", s.cfg.MetricsPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("kbbot server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.cfg.Health != nil {
		if err := s.cfg.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	w.Write([]byte(`{"status":"ok"}`))
}
