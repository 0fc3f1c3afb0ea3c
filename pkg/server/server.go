// Package server exposes the churn model over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Taha-Alami/Chrun-prediction/pkg/churn"
	"github.com/Taha-Alami/Chrun-prediction/pkg/config"
	"github.com/Taha-Alami/Chrun-prediction/pkg/metrics"
)

// ErrNoModel is returned while no model has been loaded.
var ErrNoModel = errors.New("server: no model loaded")

// ScorerLoader fetches the model to serve.
type ScorerLoader func(ctx context.Context) (*churn.Scorer, error)

// Server represents the HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	load       ScorerLoader
	metrics    *metrics.Metrics
	logger     *zap.Logger
	cfg        config.ServerConfig

	mu     sync.RWMutex
	scorer *churn.Scorer
}

// New creates the server and its routes. No model is served until Reload
// succeeds.
func New(cfg config.ServerConfig, load ScorerLoader, m *metrics.Metrics, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		load:    load,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	chain := Chain(
		Recovery(s.logger),
		RequestID,
		Logging(s.logger),
		Instrument(s.metrics),
	)
	s.router.Use(func(next http.Handler) http.Handler { return chain(next) })

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	v1.HandleFunc("/model", s.handleModel).Methods(http.MethodGet)
	v1.HandleFunc("/model/reload", s.handleReload).Methods(http.MethodPost)

	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed", r.Header.Get(RequestIDHeader))
	})
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeInvalidRequest, "endpoint not found", r.Header.Get(RequestIDHeader))
	})
	s.router.MethodNotAllowedHandler = notAllowed
	// Subrouters do not inherit the parent's method mismatch handler.
	v1.MethodNotAllowedHandler = notAllowed
}

// Reload loads the model again and swaps it in. The previous model keeps
// serving when loading fails.
func (s *Server) Reload(ctx context.Context) (*churn.Scorer, error) {
	scorer, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.scorer = scorer
	s.mu.Unlock()
	s.metrics.SetModelVersion(scorer.Version())
	s.logger.Info("serving model", zap.String("uri", scorer.URI()), zap.Int("version", scorer.Version()))
	return scorer, nil
}

func (s *Server) current() (*churn.Scorer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.scorer == nil {
		return nil, ErrNoModel
	}
	return s.scorer, nil
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.Int("port", s.cfg.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
