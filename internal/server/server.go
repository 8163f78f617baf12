// Package server provides the HTTP and websocket front of the signlearn service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/signlearn/internal/capture"
	"github.com/ayusman/signlearn/internal/pipeline"
	"github.com/ayusman/signlearn/internal/server/api"
	"github.com/ayusman/signlearn/internal/sink"
	"github.com/ayusman/signlearn/internal/store"
)

// ShutdownTimeout bounds graceful shutdown in Run.
const ShutdownTimeout = 5 * time.Second

// Config holds the server configuration.
type Config struct {
	StaticDir string
	// Store enables the session log routes and recording of browser sessions.
	Store store.Backend
	// Registry tracks live sessions; a new one is created when nil.
	Registry *pipeline.Registry

	// Predictor enables GET /api/session.
	Predictor  pipeline.Predictor
	WindowSize int
	// Sinks are attached to every browser session.
	Sinks []pipeline.Sink

	// Preview enables GET /api/stream.
	Preview *capture.Preview
	// Landmarks enables GET /api/landmarks.
	Landmarks *LandmarksHub

	Logger *slog.Logger
}

// Server represents the HTTP server for the signlearn service.
type Server struct {
	config   Config
	mux      *http.ServeMux
	start    time.Time
	registry *pipeline.Registry
	sessions *SessionHandler
	logger   *slog.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := config.Registry
	if registry == nil {
		registry = pipeline.NewRegistry()
	}

	s := &Server{
		config:   config,
		mux:      http.NewServeMux(),
		start:    time.Now(),
		registry: registry,
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/api/stats", api.NewStatsHandler(s.registry, s.config.Store))

	if s.config.Store != nil {
		sessions := api.NewSessionsHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	if s.config.Predictor != nil {
		var recorder *sink.Recorder
		if s.config.Store != nil {
			recorder = sink.NewRecorder(s.config.Store, s.logger)
		}
		s.sessions = newSessionHandler(s.config, s.registry, recorder, s.logger)
		s.mux.Handle("/api/session", s.sessions)
	}

	if s.config.Preview != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Preview))
	}

	if s.config.Landmarks != nil {
		s.mux.Handle("/api/landmarks", s.config.Landmarks)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Registry returns the live session registry.
func (s *Server) Registry() *pipeline.Registry {
	return s.registry
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":   "ok",
		"uptime":   time.Since(s.start).String(),
		"sessions": s.registry.Summary().Active,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully: the
// listener stops, websocket clients are disconnected and live sessions closed.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// long-lived requests such as the MJPEG stream end when shutdown begins
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		s.closeLive()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.logger.Info("stopping HTTP server")
	err := srv.Shutdown(shutdownCtx)
	s.closeLive()

	if err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("HTTP server gracefully stopped")
	return nil
}

func (s *Server) closeLive() {
	if s.sessions != nil {
		s.sessions.Close()
	}
	if s.config.Landmarks != nil {
		s.config.Landmarks.Close()
	}
	s.registry.CloseAll()
}
