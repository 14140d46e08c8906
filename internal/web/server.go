// Package web provides the HTTP service: health and status endpoints and a
// small status page.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/erpserver/internal/config"
	"github.com/JonMunkholm/erpserver/internal/lifecycle"
	"github.com/JonMunkholm/erpserver/internal/logging"
	"github.com/JonMunkholm/erpserver/internal/web/middleware"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("http server already started")

// Server is the HTTP service. It implements the service registry's
// Name/Start/Stop contract.
type Server struct {
	cfg     config.ServerConfig
	status  StatusSource
	workers *lifecycle.WorkerSet
	router  *chi.Mux

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates the HTTP service. The listener goroutine is tracked in
// workers as a non-daemon worker.
func NewServer(cfg config.ServerConfig, status StatusSource, workers *lifecycle.WorkerSet) *Server {
	s := &Server{
		cfg:     cfg,
		status:  status,
		workers: workers,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleIndex)
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.APIKeys))
		r.Get("/status", s.handleStatus)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
}

// Name identifies the service in logs.
func (s *Server) Name() string { return "http" }

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr()
}

// Start binds the listener and serves in a tracked worker. Bind errors are
// returned synchronously.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.server = srv
	s.listener = ln

	log := logging.Named("http")
	log.Info("HTTP service running", "addr", ln.Addr().String())

	s.workers.Go("http-server", false, func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP service failed", "error", err)
		}
	})
	return nil
}

// Stop gracefully shuts the listener down, bounded by ctx and the
// configured shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// uptime formats a duration for the status page.
func uptime(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
