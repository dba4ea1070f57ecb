// Package httpapi serves the position and simulation API, the password gate
// and the static dashboard.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deltaHedge/internal/engine"
	"deltaHedge/internal/model"
	"deltaHedge/internal/service"
)

// Backend is the set of operations the API exposes. *service.Service
// implements it.
type Backend interface {
	GetPositionsWithHedges(ctx context.Context) (service.PositionsResult, error)
	SimulatePosition(ctx context.Context, req engine.SimulationRequest) (model.PositionReport, error)
	GetAvailablePairs() []model.Pair
}

// Options configures the server.
type Options struct {
	Listen    string
	Password  string
	StaticDir string
	// Registry receives HTTP metrics and is served at /metrics. Nil disables both.
	Registry        *prometheus.Registry
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	backend         Backend
	router          *mux.Router
	server          *http.Server
	auth            *authenticator
	metrics         *httpMetrics
	logger          *zap.Logger
	now             func() time.Time
	requestTimeout  time.Duration
	shutdownTimeout time.Duration
}

func New(backend Backend, opts Options, logger *zap.Logger) (*Server, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		backend:         backend,
		router:          mux.NewRouter(),
		auth:            newAuthenticator(opts.Password),
		logger:          logger,
		now:             time.Now,
		requestTimeout:  opts.RequestTimeout,
		shutdownTimeout: opts.ShutdownTimeout,
	}
	if opts.Registry != nil {
		metrics, err := newHTTPMetrics(opts.Registry)
		if err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
		s.metrics = metrics
	}

	s.setupRoutes(opts)
	s.server = &http.Server{
		Addr:              opts.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes(opts Options) {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if opts.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/login", s.auth.login).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.auth.middleware)
	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/simulate", s.handleSimulate).Methods(http.MethodPost)
	api.HandleFunc("/pools", s.handlePools).Methods(http.MethodGet)

	if opts.StaticDir != "" {
		static := s.router.PathPrefix("/").Subrouter()
		static.Use(s.auth.middleware)
		static.PathPrefix("/").Handler(http.FileServer(http.Dir(opts.StaticDir))).Methods(http.MethodGet, http.MethodHead)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", listener.Addr().String()))
		errCh <- s.server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
