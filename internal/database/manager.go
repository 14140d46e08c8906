// Package database manages one PostgreSQL connection pool per logical
// database and the system tables the server itself reads: installed modules,
// external ids, recurring jobs and translations.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/erpserver/internal/config"
	"github.com/JonMunkholm/erpserver/internal/logging"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("database manager closed")

// Manager hands out connections to named databases. Pools are created on
// first use and live until Close.
type Manager struct {
	cfg     config.DatabaseConfig
	updater ModuleUpdater
	logger  *slog.Logger

	mu     sync.Mutex
	pools  map[string]*pgxpool.Pool
	closed bool
}

// NewManager creates a manager for the databases reachable through cfg.URL.
func NewManager(cfg config.DatabaseConfig) *Manager {
	return &Manager{
		cfg:     cfg,
		updater: StateUpdater{},
		logger:  logging.Named("db"),
		pools:   make(map[string]*pgxpool.Pool),
	}
}

// Acquire returns a handle on a pooled connection to name. When upd is not
// empty the requested modules are marked and the module updater runs, all in
// one transaction committed before the handle is returned.
func (m *Manager) Acquire(ctx context.Context, name string, upd ModuleUpdate) (*Handle, error) {
	pool, err := m.pool(ctx, name)
	if err != nil {
		return nil, err
	}

	if !upd.Empty() {
		if err := m.applyModuleUpdate(ctx, pool, name, upd); err != nil {
			return nil, fmt.Errorf("update modules in %s: %w", name, err)
		}
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection to %s: %w", name, err)
	}
	return &Handle{name: name, conn: conn}, nil
}

func (m *Manager) applyModuleUpdate(ctx context.Context, pool *pgxpool.Pool, name string, upd ModuleUpdate) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if upd.initializes() {
			if err := EnsureSchema(ctx, tx); err != nil {
				return err
			}
		}
		marked, err := markModules(ctx, tx, upd)
		if err != nil {
			return err
		}
		m.logger.Info("modules marked", "db", name, "to_install", marked.install, "to_upgrade", marked.upgrade)
		return m.updater.UpdateModules(ctx, tx, name)
	})
}

// pool returns the pool for name, connecting and pinging on first use.
func (m *Manager) pool(ctx context.Context, name string) (*pgxpool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if p, ok := m.pools[name]; ok {
		return p, nil
	}

	pc, err := poolConfig(m.cfg, name)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", name, err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping %s: %w", name, err)
	}

	m.pools[name] = p
	m.logger.Info("connected to database", "db", name, "max_conns", pc.MaxConns)
	return p, nil
}

// poolConfig derives the pool settings for one logical database from the
// shared URL: the database is replaced by name and DB_USER overrides the
// URL user.
func poolConfig(cfg config.DatabaseConfig, name string) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if name != "" {
		pc.ConnConfig.Database = name
	}
	if cfg.User != "" {
		pc.ConnConfig.User = cfg.User
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pc.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	return pc, nil
}

// Databases returns the names of the databases with an open pool.
func (m *Manager) Databases() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every pool. Handles still held become unusable.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for name, p := range m.pools {
		p.Close()
		delete(m.pools, name)
	}
}
