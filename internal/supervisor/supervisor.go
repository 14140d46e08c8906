// Package supervisor sequences the life of the server process: preflight,
// database bootstrap, the one-shot translation and stop-after-init modes,
// service startup, the main loop and shutdown.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/erpserver/internal/agent"
	"github.com/JonMunkholm/erpserver/internal/bootstrap"
	"github.com/JonMunkholm/erpserver/internal/config"
	"github.com/JonMunkholm/erpserver/internal/database"
	"github.com/JonMunkholm/erpserver/internal/lifecycle"
	"github.com/JonMunkholm/erpserver/internal/logging"
	"github.com/JonMunkholm/erpserver/internal/service"
	"github.com/JonMunkholm/erpserver/internal/translation"
	"github.com/JonMunkholm/erpserver/internal/web"
)

// Deps are the external collaborators of the supervisor.
type Deps struct {
	Version string

	// Acquire connects to a database for bootstrap
	Acquire bootstrap.AcquireFunc

	// TestLoader loads the test-data file (default: database.LoadTestFile)
	TestLoader bootstrap.TestLoader

	// Jobs loads recurring job definitions; JobFuncs are the functions they may name
	Jobs     agent.JobSource
	JobFuncs map[string]agent.Func

	// Translations opens translation stores for the translation modes
	Translations translation.Opener

	// Databases lists connected databases for status output
	Databases func() []string

	// Services are registered after the HTTP service, in order
	Services []service.Service

	// CurrentUser reports the OS user for preflight (default: CurrentUsername)
	CurrentUser UserLookup

	// Close releases external resources before a one-shot mode exits
	Close func()

	// InstallSignals registers the process signal handlers in serve mode
	InstallSignals bool

	Exit   lifecycle.ExitFunc
	Stderr io.Writer
}

// Supervisor runs one process lifetime.
type Supervisor struct {
	cfg  *config.Config
	deps Deps

	bootID  uuid.UUID
	started time.Time
	logger  *slog.Logger

	state    *lifecycle.State
	workers  *lifecycle.WorkerSet
	registry *service.Registry
	agent    *agent.Agent
	signals  *lifecycle.SignalController

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a supervisor for cfg.
func New(cfg *config.Config, deps Deps) *Supervisor {
	if deps.Exit == nil {
		deps.Exit = lifecycle.DefaultExit
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Databases == nil {
		deps.Databases = func() []string { return nil }
	}

	s := &Supervisor{
		cfg:      cfg,
		deps:     deps,
		bootID:   uuid.New(),
		started:  time.Now(),
		logger:   logging.Named("server"),
		state:    lifecycle.NewState(),
		workers:  lifecycle.NewWorkerSet(),
		registry: service.NewRegistry(logging.Named("services")),
		ready:    make(chan struct{}),
	}

	s.agent = agent.New(deps.Jobs, s.workers)
	for name, fn := range deps.JobFuncs {
		s.agent.RegisterFunc(name, fn)
	}

	s.signals = lifecycle.NewSignalController(s.state, lifecycle.SignalOptions{
		Exit:       deps.Exit,
		Stderr:     deps.Stderr,
		Diagnostic: cfg.Process.DiagnosticSignal,
		Dump: func() {
			lifecycle.DumpStacks(logging.Named("dumpstacks"), s.workers)
		},
	})
	return s
}

// Signals returns the signal controller.
func (s *Supervisor) Signals() *lifecycle.SignalController { return s.signals }

// Ready is closed once services are started and the main loop is entered.
func (s *Supervisor) Ready() <-chan struct{} { return s.ready }

// Run executes the whole lifetime for the configured mode. Every path ends
// in a call to Exit: 0 on success, 1 on a preflight or startup failure.
func (s *Supervisor) Run(ctx context.Context) {
	if err := Preflight(s.cfg, s.deps.CurrentUser); err != nil {
		fmt.Fprintln(s.deps.Stderr, err)
		s.deps.Exit(1)
		return
	}

	mode := ModeFor(s.cfg)
	s.banner(mode)

	if err := s.run(ctx, mode); err != nil {
		fmt.Fprintf(s.deps.Stderr, "startup failed: %v\n", err)
		s.logger.Error("startup failed", "mode", mode.String(), "error", err)
		s.close()
		s.deps.Exit(1)
	}
}

func (s *Supervisor) run(ctx context.Context, mode Mode) error {
	if err := s.bootstrap(ctx); err != nil {
		return err
	}

	switch mode {
	case ModeExportTranslations:
		if err := s.exportTranslations(ctx); err != nil {
			return err
		}
		return s.finishOneShot()

	case ModeImportTranslations:
		if err := s.importTranslations(ctx); err != nil {
			return err
		}
		return s.finishOneShot()

	case ModeStopAfterInit:
		s.logger.Info("initialization complete, stopping")
		return s.finishOneShot()

	default:
		return s.serve()
	}
}

func (s *Supervisor) finishOneShot() error {
	s.close()
	s.deps.Exit(0)
	return nil
}

func (s *Supervisor) close() {
	if s.deps.Close != nil {
		s.deps.Close()
	}
}

func (s *Supervisor) banner(mode Mode) {
	host, port := s.cfg.Database.HostPort()
	user := s.cfg.Database.EffectiveUser()
	if user == "" {
		user = "default"
	}
	addons := s.cfg.Database.AddonsPath
	if addons == "" {
		addons = "none"
	}

	s.logger.Info("erpserver version " + s.deps.Version)
	s.logger.Info("addons paths " + addons)
	s.logger.Info("database hostname " + host)
	s.logger.Info("database port " + port)
	s.logger.Info("database user " + user)
	s.logger.Debug("configuration", "mode", mode.String(), "boot_id", s.bootID.String(), "config", s.cfg.String())
}

func (s *Supervisor) bootstrap(ctx context.Context) error {
	if len(s.cfg.Database.Names) == 0 {
		return nil
	}
	if s.deps.Acquire == nil {
		return fmt.Errorf("no database connector configured")
	}

	b := bootstrap.New(s.deps.Acquire, s.deps.TestLoader, s.agent)
	_, err := b.Run(ctx, bootstrap.Request{
		Databases: s.cfg.Database.Names,
		Modules: database.ModuleUpdate{
			Init:   s.cfg.Bootstrap.InitModules,
			Update: s.cfg.Bootstrap.UpdateModules,
		},
		TestFile:        s.cfg.Bootstrap.TestFile,
		ContinueOnError: s.cfg.Bootstrap.ContinueOnError,
	})
	return err
}

func (s *Supervisor) exportTranslations(ctx context.Context) error {
	db, err := translationDatabase(s.cfg)
	if err != nil {
		return err
	}
	return translation.Export(ctx, s.deps.Translations, translation.ExportRequest{
		Database: db,
		Language: s.cfg.Translate.Language,
		Modules:  s.cfg.Translate.Modules,
		Path:     s.cfg.Translate.Out,
	})
}

func (s *Supervisor) importTranslations(ctx context.Context) error {
	db, err := translationDatabase(s.cfg)
	if err != nil {
		return err
	}
	_, err = translation.Import(ctx, s.deps.Translations, translation.ImportRequest{
		Database:  db,
		Language:  s.cfg.Translate.Language,
		Path:      s.cfg.Translate.In,
		Overwrite: s.cfg.Translate.Overwrite,
	})
	return err
}

// serve starts services, idles in the main loop and shuts down. It returns
// an error only for failures before services run.
func (s *Supervisor) serve() error {
	if s.cfg.Server.Enabled {
		if err := s.registry.Register(web.NewServer(s.cfg.Server, s, s.workers)); err != nil {
			return err
		}
	}
	for _, svc := range s.deps.Services {
		if err := s.registry.Register(svc); err != nil {
			return err
		}
	}

	var pid *lifecycle.PIDFile
	if path := s.cfg.Process.PIDFile; path != "" {
		var err error
		if pid, err = lifecycle.WritePIDFile(path); err != nil {
			return err
		}
		s.logger.Info("pid file written", "path", path)
	}

	if err := s.registry.StartAll(); err != nil {
		if rmErr := pid.Remove(); rmErr != nil {
			s.logger.Error("failed to remove pid file", "error", rmErr)
		}
		return err
	}

	if pid != nil {
		if err := pid.Check(); err != nil {
			s.registry.StopAll(context.Background())
			return err
		}
	}

	if s.deps.InstallSignals {
		s.signals.Install()
	}

	var agentStopper lifecycle.Stopper
	if s.cfg.Agent.Enabled {
		if err := s.agent.Start(); err != nil {
			s.logger.Error("agent failed to start", "error", err)
		} else {
			agentStopper = s.agent
		}
	}

	seq := lifecycle.NewSequencer(lifecycle.SequencerConfig{
		State:          s.state,
		Agent:          agentStopper,
		Services:       s.registry,
		PIDFile:        pid,
		Workers:        s.workers,
		AgentTimeout:   s.cfg.Agent.StopTimeout,
		ServiceTimeout: s.cfg.Server.ShutdownTimeout,
		DrainPoll:      s.cfg.Process.DrainPoll,
		Exit:           s.deps.Exit,
	})

	s.logger.Info("server running", "boot_id", s.bootID.String(), "services", s.registry.Names())
	s.readyOnce.Do(func() { close(s.ready) })

	lifecycle.Run(s.state, s.cfg.Process.MainLoopPoll, seq)
	return nil
}

// Status implements web.StatusSource.
func (s *Supervisor) Status() web.Status {
	return web.Status{
		BootID:           s.bootID.String(),
		Version:          s.deps.Version,
		Started:          s.started,
		ShutdownRequests: s.state.ShutdownRequests(),
		Running:          s.state.Running() && s.state.ShutdownRequests() == 0,
		Databases:        s.deps.Databases(),
		Services:         s.registry.Names(),
		Workers:          s.workers.Live(),
		Jobs:             s.agent.Jobs(),
	}
}
