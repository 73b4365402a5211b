// Package api exposes the evolution workflow over HTTP. Request/response
// operations use plain JSON; model streams are delivered as server-sent
// events so clients observe the same chunk/done/error ordering the
// underlying channels guarantee.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"evermore/internal/services"
)

// Config carries the listener settings for the API server.
type Config struct {
	Addr        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

// Server wraps the HTTP listener and the workflow service handlers.
type Server struct {
	cfg    Config
	svcs   *services.DbServices
	models services.ModelConfigService
	logger *zap.Logger

	server   *http.Server
	listener net.Listener
}

func NewServer(cfg Config, svcs *services.DbServices, modelCfg services.ModelConfigService, logger *zap.Logger) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	return &Server{cfg: cfg, svcs: svcs, models: modelCfg, logger: logger}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /stories/{storyID}/evolution", s.handleStartSession)
	mux.HandleFunc("GET /stories/{storyID}/evolution/active", s.handleActiveSession)

	mux.HandleFunc("GET /sessions/{sessionID}", s.handleGetSession)
	mux.HandleFunc("PATCH /sessions/{sessionID}/phase", s.handleAdvancePhase)
	mux.HandleFunc("POST /sessions/{sessionID}/summarize", s.handleSummarize)
	mux.HandleFunc("POST /sessions/{sessionID}/accept", s.handleAccept)
	mux.HandleFunc("POST /sessions/{sessionID}/discard", s.handleDiscard)

	mux.HandleFunc("GET /sessions/{sessionID}/messages", s.handleHistory)
	mux.HandleFunc("POST /sessions/{sessionID}/messages", s.handleSendMessage)
	mux.HandleFunc("POST /sessions/{sessionID}/messages/retry", s.handleRetryMessage)
	mux.HandleFunc("GET /sessions/{sessionID}/ready", s.handleReady)

	mux.HandleFunc("POST /sessions/{sessionID}/draft", s.handleGenerateDraft)
	mux.HandleFunc("POST /sessions/{sessionID}/revise", s.handleRevise)
	mux.HandleFunc("GET /sessions/{sessionID}/versions", s.handleVersions)

	mux.HandleFunc("GET /models", s.handleListModels)
	mux.HandleFunc("PUT /models/{modelKey}/enabled", s.handleSetModelEnabled)

	return s.logged(mux)
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:     s.routes(),
		ReadTimeout: s.cfg.ReadTimeout,
		IdleTimeout: s.cfg.IdleTimeout,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve error", zap.Error(err))
		}
	}()
	s.logger.Info("api listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Shutdown drains in-flight requests, including open SSE streams.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
