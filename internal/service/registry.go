// Package service holds the set of long-running subsystems (listeners,
// background agents) the server starts after initialization and stops on
// shutdown. The registry never looks inside a service.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrDuplicateService is returned when two services share a name.
var ErrDuplicateService = errors.New("service already registered")

// Service is one long-running subsystem. Stop must be safe to call on a
// started service once and must honor ctx.
type Service interface {
	Name() string
	Start() error
	Stop(ctx context.Context) error
}

type entry struct {
	svc     Service
	started bool
}

// Registry starts and stops services as a group.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
	names   map[string]bool
	logger  *slog.Logger
}

// NewRegistry creates an empty registry logging through logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		names:  make(map[string]bool),
		logger: logger,
	}
}

// Register adds a service. Services start in registration order.
func (r *Registry) Register(svc Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names[svc.Name()] {
		return fmt.Errorf("%w: %s", ErrDuplicateService, svc.Name())
	}
	r.names[svc.Name()] = true
	r.entries = append(r.entries, &entry{svc: svc})
	return nil
}

// Names returns the registered service names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.svc.Name()
	}
	return names
}

// StartAll starts every service not yet started. If one fails, the services
// started by this call are stopped again and the error is returned.
func (r *Registry) StartAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var startedNow []*entry
	for _, e := range r.entries {
		if e.started {
			continue
		}
		if err := e.svc.Start(); err != nil {
			r.logger.Error("service failed to start", "service", e.svc.Name(), "error", err)
			for i := len(startedNow) - 1; i >= 0; i-- {
				r.stop(context.Background(), startedNow[i])
			}
			return fmt.Errorf("start %s: %w", e.svc.Name(), err)
		}
		e.started = true
		startedNow = append(startedNow, e)
		r.logger.Info("service started", "service", e.svc.Name())
	}
	return nil
}

// StopAll stops every started service. Per-service errors are logged and do
// not prevent the remaining services from stopping. Calling StopAll again
// only affects services started since.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		r.stop(ctx, r.entries[i])
	}
}

func (r *Registry) stop(ctx context.Context, e *entry) {
	if !e.started {
		return
	}
	e.started = false
	if err := e.svc.Stop(ctx); err != nil {
		r.logger.Error("service failed to stop", "service", e.svc.Name(), "error", err)
		return
	}
	r.logger.Info("service stopped", "service", e.svc.Name())
}

// Running returns the number of started services.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.started {
			n++
		}
	}
	return n
}
