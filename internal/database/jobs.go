package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/erpserver/internal/agent"
)

type cronRow struct {
	ID             int64
	Name           string
	IntervalNumber int
	IntervalType   string
	Function       string
}

// ActiveJobs loads the active recurring jobs of dbname. A database without
// the ir_cron table has no jobs.
func (m *Manager) ActiveJobs(ctx context.Context, dbname string) ([]agent.JobDef, error) {
	pool, err := m.pool(ctx, dbname)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT id, name, interval_number, interval_type, function
		FROM ir_cron
		WHERE active
		ORDER BY priority, id`)
	if err != nil {
		if isUndefinedTable(err) {
			m.logger.Debug("no job table", "db", dbname)
			return nil, nil
		}
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	crons, err := pgx.CollectRows(rows, pgx.RowToStructByPos[cronRow])
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs: %w", err)
	}

	defs := make([]agent.JobDef, 0, len(crons))
	for _, c := range crons {
		spec, err := cronSchedule(c.IntervalNumber, c.IntervalType)
		if err != nil {
			m.logger.Warn("skipping job", "db", dbname, "job", c.Name, "error", err)
			continue
		}
		defs = append(defs, agent.JobDef{
			ID:       c.ID,
			Name:     c.Name,
			Schedule: spec,
			Function: c.Function,
		})
	}
	return defs, nil
}

// cronSchedule converts a stored interval into a cron spec.
func cronSchedule(number int, unit string) (string, error) {
	if number <= 0 {
		return "", fmt.Errorf("interval must be positive, got %d", number)
	}
	switch unit {
	case "minutes":
		return fmt.Sprintf("@every %dm", number), nil
	case "hours":
		return fmt.Sprintf("@every %dh", number), nil
	case "days":
		return fmt.Sprintf("@every %dh", number*24), nil
	case "weeks":
		return fmt.Sprintf("@every %dh", number*24*7), nil
	case "work_days":
		return "0 0 * * 1-5", nil
	case "months":
		return fmt.Sprintf("0 0 1 */%d *", number), nil
	default:
		return "", fmt.Errorf("unknown interval type %q", unit)
	}
}

// JobFuncs returns the job functions implemented by the database layer,
// keyed by the function name stored in ir_cron.
func (m *Manager) JobFuncs() map[string]agent.Func {
	return map[string]agent.Func{
		"ir.translation.update_res_ids": m.RelinkTranslations,
	}
}
