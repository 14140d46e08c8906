package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/erpserver/internal/logging"
)

// Stopper is a subsystem stopped during shutdown.
type Stopper interface {
	Stop(ctx context.Context) error
}

// ServiceStopper stops every registered service. Errors are handled by the
// implementation.
type ServiceStopper interface {
	StopAll(ctx context.Context)
}

// SequencerConfig wires the collaborators of the shutdown sequence.
// Any collaborator may be nil.
type SequencerConfig struct {
	State    *State
	Agent    Stopper
	Services ServiceStopper
	PIDFile  *PIDFile
	Workers  *WorkerSet

	// AgentTimeout bounds the wait for running background jobs
	AgentTimeout time.Duration

	// ServiceTimeout bounds the stop of all services
	ServiceTimeout time.Duration

	// DrainPoll is the join increment for non-daemon workers
	DrainPoll time.Duration

	Exit   ExitFunc
	Logger *slog.Logger
}

// Sequencer performs the clean shutdown after the first termination request.
type Sequencer struct {
	cfg  SequencerConfig
	once sync.Once
}

// NewSequencer creates a shutdown sequencer.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	if cfg.State == nil {
		cfg.State = NewState()
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = 30 * time.Second
	}
	if cfg.ServiceTimeout <= 0 {
		cfg.ServiceTimeout = 30 * time.Second
	}
	if cfg.DrainPoll <= 0 {
		cfg.DrainPoll = 50 * time.Millisecond
	}
	if cfg.Exit == nil {
		cfg.Exit = DefaultExit
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Named("shutdown")
	}
	return &Sequencer{cfg: cfg}
}

// Shutdown runs the sequence once; later calls return immediately.
//
// A second termination signal during any step is handled by the
// SignalController, which ends the process before this returns.
func (s *Sequencer) Shutdown() {
	s.once.Do(s.run)
}

func (s *Sequencer) run() {
	cfg := s.cfg
	log := cfg.Logger

	cfg.State.markStopped()

	if cfg.Agent != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.AgentTimeout)
		if err := cfg.Agent.Stop(ctx); err != nil {
			log.Warn("agent did not stop cleanly", "error", err)
		}
		cancel()
	}

	if cfg.Services != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ServiceTimeout)
		cfg.Services.StopAll(ctx)
		cancel()
	}

	if cfg.PIDFile != nil {
		if err := cfg.PIDFile.Remove(); err != nil {
			log.Error("failed to remove pid file", "error", err)
		}
	}

	log.Info("Initiating server shutdown")
	log.Info("Hit CTRL-C again or send a second signal to immediately terminate the server...")

	if cfg.Workers != nil {
		_, pending := cfg.Workers.Counts()
		if pending > 0 {
			log.Info("waiting for workers to finish", "workers", pending)
		}
		joined := cfg.Workers.Drain(cfg.DrainPoll)
		log.Debug("workers drained", "joined", joined)
	}

	cfg.Exit(0)
}
