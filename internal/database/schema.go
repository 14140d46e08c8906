package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// schemaStatements create the system tables on a fresh database.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ir_module_module (
		id          serial PRIMARY KEY,
		name        text NOT NULL UNIQUE,
		state       text NOT NULL DEFAULT 'uninstalled',
		write_date  timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ir_model_data (
		id      serial PRIMARY KEY,
		module  text NOT NULL,
		name    text NOT NULL,
		model   text NOT NULL,
		res_id  bigint NOT NULL,
		UNIQUE (module, name)
	)`,
	`CREATE TABLE IF NOT EXISTS ir_cron (
		id               serial PRIMARY KEY,
		name             text NOT NULL,
		active           boolean NOT NULL DEFAULT true,
		interval_number  integer NOT NULL DEFAULT 1,
		interval_type    text NOT NULL DEFAULT 'hours',
		function         text NOT NULL,
		priority         integer NOT NULL DEFAULT 5
	)`,
	`CREATE TABLE IF NOT EXISTS ir_translation (
		id          serial PRIMARY KEY,
		lang        text NOT NULL,
		module      text NOT NULL DEFAULT '',
		type        text NOT NULL,
		name        text NOT NULL,
		res_id      bigint NOT NULL DEFAULT 0,
		src         text NOT NULL,
		value       text NOT NULL DEFAULT '',
		imd_module  text,
		imd_name    text
	)`,
	`CREATE INDEX IF NOT EXISTS ir_translation_lookup
		ON ir_translation (lang, type, name, res_id)`,
}

// EnsureSchema creates any missing system table.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create system tables: %w", err)
		}
	}
	return nil
}

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}
