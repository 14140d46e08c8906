// Package agent runs recurring background jobs defined per database.
//
// Job definitions come from a JobSource (the ir_cron table in production).
// Each definition names a registered Func; the agent schedules it with
// robfig/cron and executes every run as a non-daemon worker so the shutdown
// drain waits for it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/erpserver/internal/lifecycle"
	"github.com/JonMunkholm/erpserver/internal/logging"
)

// ErrUnknownFunction is reported for a job naming a function nobody registered.
var ErrUnknownFunction = errors.New("unknown job function")

// Func is the body of a job. dbname is the database the job was defined in.
type Func func(ctx context.Context, dbname string) error

// JobDef is one active job definition.
type JobDef struct {
	ID       int64
	Name     string
	Schedule string // cron expression or descriptor such as "@every 1h"
	Function string
}

// JobSource loads the active job definitions of one database.
type JobSource interface {
	ActiveJobs(ctx context.Context, dbname string) ([]JobDef, error)
}

// JobInfo describes a scheduled job for status reporting.
type JobInfo struct {
	Database string    `json:"database"`
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitempty"`
}

type scheduled struct {
	entry cron.EntryID
	def   JobDef
}

// Agent schedules jobs for every bootstrapped database.
type Agent struct {
	cron    *cron.Cron
	source  JobSource
	workers *lifecycle.WorkerSet
	logger  *slog.Logger

	mu      sync.Mutex
	funcs   map[string]Func
	jobs    map[string][]scheduled
	started bool
	stopped bool

	// runCtx is handed to every run and cancelled when Stop gives up waiting.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

// New creates an agent. workers receives one non-daemon worker per run.
func New(source JobSource, workers *lifecycle.WorkerSet) *Agent {
	logger := logging.Named("agent")
	runCtx, cancel := context.WithCancel(context.Background())
	return &Agent{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
		source:    source,
		workers:   workers,
		logger:    logger,
		funcs:     make(map[string]Func),
		jobs:      make(map[string][]scheduled),
		runCtx:    runCtx,
		cancelRun: cancel,
	}
}

// Name implements service naming for status output.
func (a *Agent) Name() string { return "cron" }

// RegisterFunc makes fn available to job definitions under name.
func (a *Agent) RegisterFunc(name string, fn Func) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.funcs[name] = fn
}

// RegisterJobs loads the active jobs of dbname and schedules them, replacing
// any jobs previously registered for that database. Definitions with an
// invalid schedule or an unknown function are logged and skipped. It returns
// the number of jobs scheduled.
func (a *Agent) RegisterJobs(ctx context.Context, dbname string) (int, error) {
	if a.source == nil {
		return 0, nil
	}
	defs, err := a.source.ActiveJobs(ctx, dbname)
	if err != nil {
		return 0, fmt.Errorf("load jobs for %s: %w", dbname, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range a.jobs[dbname] {
		a.cron.Remove(s.entry)
	}
	delete(a.jobs, dbname)

	var registered []scheduled
	for _, def := range defs {
		fn, ok := a.funcs[def.Function]
		if !ok {
			a.logger.Warn("skipping job",
				"db", dbname,
				"job", def.Name,
				"error", fmt.Errorf("%w: %s", ErrUnknownFunction, def.Function),
			)
			continue
		}

		id, err := a.cron.AddFunc(def.Schedule, a.runner(dbname, def, fn))
		if err != nil {
			a.logger.Warn("skipping job", "db", dbname, "job", def.Name, "schedule", def.Schedule, "error", err)
			continue
		}
		registered = append(registered, scheduled{entry: id, def: def})
	}
	a.jobs[dbname] = registered

	a.logger.Info("jobs registered", "db", dbname, "jobs", len(registered), "defined", len(defs))
	return len(registered), nil
}

// runner wraps fn so each run is a tracked non-daemon worker. The cron
// goroutine blocks on the worker so SkipIfStillRunning and Stop see it.
func (a *Agent) runner(dbname string, def JobDef, fn Func) func() {
	name := fmt.Sprintf("cron-%s-%s", dbname, def.Name)
	return func() {
		w := a.workers.Go(name, false, func() {
			start := time.Now()
			log := a.logger.With("db", dbname, "job", def.Name)
			log.Debug("job started")
			if err := fn(a.runCtx, dbname); err != nil {
				log.Error("job failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
				return
			}
			log.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
		})
		<-w.Done()
	}
}

// Start begins scheduling. Calling Start after Stop has no effect.
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started || a.stopped {
		return nil
	}
	a.cron.Start()
	a.started = true
	a.logger.Info("agent started", "jobs", len(a.cron.Entries()))
	return nil
}

// Stop stops scheduling new runs and waits for running jobs until ctx
// expires. On expiry the context handed to running jobs is cancelled and
// ctx.Err() is returned; the runs themselves stay tracked as workers.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	started := a.started
	a.mu.Unlock()

	if !started {
		a.cancelRun()
		return nil
	}

	done := a.cron.Stop()
	select {
	case <-done.Done():
		a.cancelRun()
		a.logger.Info("agent stopped")
		return nil
	case <-ctx.Done():
		a.cancelRun()
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}

// Jobs returns the scheduled jobs ordered by database then name.
func (a *Agent) Jobs() []JobInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	var infos []JobInfo
	for db, list := range a.jobs {
		for _, s := range list {
			e := a.cron.Entry(s.entry)
			infos = append(infos, JobInfo{
				Database: db,
				Name:     s.def.Name,
				Schedule: s.def.Schedule,
				Next:     e.Next,
				Prev:     e.Prev,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Database != infos[j].Database {
			return infos[i].Database < infos[j].Database
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
