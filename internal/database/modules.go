package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// allModules is the wildcard accepted in module lists.
const allModules = "all"

// ModuleUpdate is the per-database module install/upgrade request.
type ModuleUpdate struct {
	Init   []string
	Update []string
}

// Empty reports whether nothing was requested.
func (u ModuleUpdate) Empty() bool {
	return len(u.Init) == 0 && len(u.Update) == 0
}

func (u ModuleUpdate) initializes() bool {
	return len(u.Init) > 0
}

// ModuleUpdater processes modules marked for install or upgrade. It runs in
// the same transaction that marked them.
type ModuleUpdater interface {
	UpdateModules(ctx context.Context, tx pgx.Tx, dbname string) error
}

// StateUpdater completes pending state transitions without loading module
// data: marked modules become installed.
type StateUpdater struct{}

func (StateUpdater) UpdateModules(ctx context.Context, tx pgx.Tx, dbname string) error {
	_, err := tx.Exec(ctx, `
		UPDATE ir_module_module
		SET state = 'installed', write_date = now()
		WHERE state IN ('to install', 'to upgrade')`)
	if err != nil {
		return fmt.Errorf("complete module states: %w", err)
	}
	return nil
}

type markCounts struct {
	install int64
	upgrade int64
}

// selector turns a module list into query arguments: the explicit names and
// whether the wildcard was given.
func selector(names []string) ([]string, bool) {
	var explicit []string
	for _, n := range names {
		if n == allModules {
			return nil, true
		}
		explicit = append(explicit, n)
	}
	return explicit, false
}

func markModules(ctx context.Context, tx pgx.Tx, upd ModuleUpdate) (markCounts, error) {
	var counts markCounts

	if len(upd.Init) > 0 {
		names, all := selector(upd.Init)
		if !all {
			// modules named for install are registered if unknown
			for _, n := range names {
				if _, err := tx.Exec(ctx, `
					INSERT INTO ir_module_module (name, state)
					VALUES ($1, 'uninstalled')
					ON CONFLICT (name) DO NOTHING`, n); err != nil {
					return counts, fmt.Errorf("register module %s: %w", n, err)
				}
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE ir_module_module
			SET state = 'to install', write_date = now()
			WHERE state = 'uninstalled' AND ($2 OR name = ANY($1))`, names, all)
		if err != nil {
			return counts, fmt.Errorf("mark modules to install: %w", err)
		}
		counts.install = tag.RowsAffected()
	}

	if len(upd.Update) > 0 {
		names, all := selector(upd.Update)
		tag, err := tx.Exec(ctx, `
			UPDATE ir_module_module
			SET state = 'to upgrade', write_date = now()
			WHERE state = 'installed' AND ($2 OR name = ANY($1))`, names, all)
		if err != nil {
			return counts, fmt.Errorf("mark modules to upgrade: %w", err)
		}
		counts.upgrade = tag.RowsAffected()
	}

	return counts, nil
}
