// Package bootstrap initializes every configured database before the server
// starts its services: module updates, the optional test-data smoke run and
// registration of recurring jobs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/erpserver/internal/database"
	"github.com/JonMunkholm/erpserver/internal/logging"
)

// Stages reported in DBError.
const (
	StageConnect  = "connect"
	StageTestData = "test data"
	StageJobs     = "jobs"
)

// DBError is the failure of one database at one stage.
type DBError struct {
	DB    string
	Stage string
	Err   error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("database %s: %s: %v", e.DB, e.Stage, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// Conn is a connection to one initialized database.
type Conn interface {
	Name() string
	Begin(ctx context.Context) (pgx.Tx, error)
	Release()
}

// AcquireFunc connects to a database, applying the module update first.
type AcquireFunc func(ctx context.Context, name string, upd database.ModuleUpdate) (Conn, error)

// TestLoader loads a test-data file inside tx.
type TestLoader func(ctx context.Context, tx pgx.Tx, path string) error

// JobRegistrar registers the recurring jobs defined in a database.
type JobRegistrar interface {
	RegisterJobs(ctx context.Context, dbname string) (int, error)
}

// Request is one bootstrap run.
type Request struct {
	Databases       []string
	Modules         database.ModuleUpdate
	TestFile        string
	ContinueOnError bool
}

// Result describes one initialized database.
type Result struct {
	Database string
	Jobs     int
	TestRun  bool
	Duration time.Duration
}

// Bootstrapper initializes databases one after another.
type Bootstrapper struct {
	acquire  AcquireFunc
	loadTest TestLoader
	jobs     JobRegistrar
	logger   *slog.Logger
}

// New creates a bootstrapper. A nil loadTest uses database.LoadTestFile;
// a nil jobs skips job registration.
func New(acquire AcquireFunc, loadTest TestLoader, jobs JobRegistrar) *Bootstrapper {
	if loadTest == nil {
		loadTest = database.LoadTestFile
	}
	return &Bootstrapper{
		acquire:  acquire,
		loadTest: loadTest,
		jobs:     jobs,
		logger:   logging.Named("bootstrap"),
	}
}

// ManagerAcquire adapts a database manager to AcquireFunc.
func ManagerAcquire(m *database.Manager) AcquireFunc {
	return func(ctx context.Context, name string, upd database.ModuleUpdate) (Conn, error) {
		h, err := m.Acquire(ctx, name, upd)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

// Run initializes req.Databases in order. The first failure aborts the run
// unless req.ContinueOnError is set, in which case every database is tried
// and the failures are joined.
func (b *Bootstrapper) Run(ctx context.Context, req Request) ([]Result, error) {
	var (
		results []Result
		errs    []error
	)
	for _, name := range req.Databases {
		res, err := b.initDatabase(ctx, name, req)
		if err != nil {
			b.logger.Error("database initialization failed", "db", name, "error", err)
			if !req.ContinueOnError {
				return results, err
			}
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (b *Bootstrapper) initDatabase(ctx context.Context, name string, req Request) (Result, error) {
	start := time.Now()
	res := Result{Database: name}
	log := b.logger.With("db", name)

	conn, err := b.acquire(ctx, name, req.Modules)
	if err != nil {
		return res, &DBError{DB: name, Stage: StageConnect, Err: err}
	}
	defer conn.Release()

	if req.TestFile != "" {
		if err := b.runTestFile(ctx, conn, req.TestFile); err != nil {
			return res, &DBError{DB: name, Stage: StageTestData, Err: err}
		}
		res.TestRun = true
		log.Info("test file loaded and rolled back", "path", req.TestFile)
	}

	if b.jobs != nil {
		n, err := b.jobs.RegisterJobs(ctx, name)
		if err != nil {
			return res, &DBError{DB: name, Stage: StageJobs, Err: err}
		}
		res.Jobs = n
	}

	res.Duration = time.Since(start)
	log.Info("database initialized", "jobs", res.Jobs, "duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// runTestFile loads path in a transaction that is always rolled back.
func (b *Bootstrapper) runTestFile(ctx context.Context, conn Conn, path string) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	loadErr := b.loadTest(ctx, tx, path)
	rbErr := tx.Rollback(context.WithoutCancel(ctx))
	if rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
		return errors.Join(loadErr, fmt.Errorf("rollback: %w", rbErr))
	}
	return loadErr
}
