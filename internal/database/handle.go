package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by connections and transactions.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Handle is one pooled connection to a named database.
type Handle struct {
	name string
	conn *pgxpool.Conn
	once sync.Once

	released atomic.Bool
}

// Name returns the database the handle is connected to.
func (h *Handle) Name() string {
	return h.name
}

// Begin starts a transaction on the handle's connection.
func (h *Handle) Begin(ctx context.Context) (pgx.Tx, error) {
	if h.conn == nil || h.released.Load() {
		return nil, fmt.Errorf("begin on %s: %w", h.name, errReleased)
	}
	return h.conn.Begin(ctx)
}

var errReleased = errors.New("handle released")

// Release returns the connection to its pool. Later calls do nothing.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.released.Store(true)
		if h.conn != nil {
			h.conn.Release()
		}
	})
}
