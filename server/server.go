// Package server exposes chat turns and session history over HTTP: an SSE
// chat endpoint, JSON session APIs and a Connect server-streaming RPC that
// carries the same events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tailored-agentic-units/board-assistant/chat"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr            string        `json:"addr,omitempty" yaml:"addr,omitempty"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
}

// DefaultConfig returns the default listener settings.
func DefaultConfig() Config {
	return Config{Addr: ":8080", ShutdownTimeout: 10 * time.Second}
}

// Merge applies non-zero values from source.
func (c *Config) Merge(source *Config) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.ShutdownTimeout > 0 {
		c.ShutdownTimeout = source.ShutdownTimeout
	}
}

// Server routes HTTP requests to a chat service.
type Server struct {
	svc     *chat.Service
	cfg     Config
	logger  *slog.Logger
	handler http.Handler
}

// New creates a Server for svc. A nil logger uses slog.Default.
func New(svc *chat.Service, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, cfg: cfg, logger: logger}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /models", s.handleModels)

	mux.HandleFunc("POST /boards/{boardID}/chat", s.handleChat)
	mux.HandleFunc("GET /boards/{boardID}/sessions", s.handleListSessions)
	mux.HandleFunc("POST /boards/{boardID}/sessions", s.handleCreateSession)
	mux.HandleFunc("PUT /boards/{boardID}/sessions/{sessionID}/current", s.handleSetCurrent)
	mux.HandleFunc("GET /sessions/{sessionID}/messages", s.handleMessages)

	path, rpc := NewChatHandler(s.svc)
	mux.Handle(path, rpc)

	return chain(mux,
		withIdentity,
		withRequestContext,
		s.withAccessLog,
	)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	<-errc
	return nil
}
