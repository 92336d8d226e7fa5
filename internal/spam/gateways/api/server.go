package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/haukened/rr-spam/internal/spam/common/log"
	"github.com/haukened/rr-spam/internal/spam/domain"
	"github.com/haukened/rr-spam/internal/spam/infra/metrics"
	"github.com/haukened/rr-spam/internal/spam/services/classifier"
)

const (
	defaultCheckTimeout    = 30 * time.Second
	defaultMaxRequestBytes = 1 << 20
)

var (
	errCheckerRequired = errors.New("checker is required")
	errNegativeMax     = errors.New("max depth must not be negative")
)

// Checker is the classification service behind POST /v1/check.
type Checker interface {
	Check(ctx context.Context, content string, domains classifier.DomainSet, depth int) (domain.Verdict, error)
}

// Server is the HTTP front end of the spam service.
type Server struct {
	router  *mux.Router
	server  *http.Server
	checker Checker
	domains classifier.DomainSet
	logger  log.Logger
	metrics *metrics.Metrics

	defaultDepth    int
	maxDepth        int
	checkTimeout    time.Duration
	maxRequestBytes int64

	ready atomic.Bool
}

// Options configures a Server.
type Options struct {
	Addr    string
	Checker Checker
	// Blocklist is used when a request does not carry its own domains.
	Blocklist classifier.DomainSet
	Logger    log.Logger
	// Metrics is optional; without it /metrics is not routed.
	Metrics *metrics.Metrics

	DefaultDepth    int
	MaxDepth        int
	CheckTimeout    time.Duration
	MaxRequestBytes int64
}

// New builds a Server and its routes. The server reports not ready until SetReady(true).
func New(opts Options) (*Server, error) {
	if opts.Checker == nil {
		return nil, errCheckerRequired
	}
	if opts.MaxDepth < 0 {
		return nil, errNegativeMax
	}
	if opts.DefaultDepth < 0 || opts.DefaultDepth > opts.MaxDepth {
		return nil, fmt.Errorf("default depth %d outside 0..%d", opts.DefaultDepth, opts.MaxDepth)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = defaultCheckTimeout
	}
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = defaultMaxRequestBytes
	}

	s := &Server{
		router:          mux.NewRouter(),
		checker:         opts.Checker,
		domains:         opts.Blocklist,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		defaultDepth:    opts.DefaultDepth,
		maxDepth:        opts.MaxDepth,
		checkTimeout:    opts.CheckTimeout,
		maxRequestBytes: opts.MaxRequestBytes,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      opts.CheckTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.Use(s.requestID, s.accessLog)

	s.router.HandleFunc("/v1/check", s.handleCheck).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// SetReady flips the /readyz answer.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info(map[string]any{"address": s.server.Addr}, "HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight checks.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)
	return s.server.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
