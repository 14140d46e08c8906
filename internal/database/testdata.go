package database

// testdata.go loads the YAML test-data file run against every database at
// bootstrap. The caller always rolls the transaction back, so the file is a
// smoke test of the schema and its constraints.
//
// The file is a list of steps. Each step is either raw SQL or one record:
//
//	- sql: UPDATE res_company SET currency_id = 1
//	- model: res.partner
//	  id: test_partner
//	  values:
//	    name: Test Partner
//	    active: true

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"
)

// testDataModule is the module that owns external ids created by test files.
const testDataModule = "__test__"

// ErrInvalidStep is returned for a test-data step that is neither SQL nor a
// record.
var ErrInvalidStep = errors.New("invalid test data step")

// TestStep is one entry of a test-data file.
type TestStep struct {
	SQL    string         `yaml:"sql"`
	Model  string         `yaml:"model"`
	ID     string         `yaml:"id"`
	Values map[string]any `yaml:"values"`
}

// ParseTestFile decodes and validates a test-data document.
func ParseTestFile(r io.Reader) ([]TestStep, error) {
	var steps []TestStep
	if err := yaml.NewDecoder(r).Decode(&steps); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode test data: %w", err)
	}
	for i, s := range steps {
		hasSQL := strings.TrimSpace(s.SQL) != ""
		hasModel := s.Model != ""
		switch {
		case hasSQL && hasModel:
			return nil, fmt.Errorf("%w: step %d has both sql and model", ErrInvalidStep, i+1)
		case !hasSQL && !hasModel:
			return nil, fmt.Errorf("%w: step %d has neither sql nor model", ErrInvalidStep, i+1)
		case hasModel && len(s.Values) == 0:
			return nil, fmt.Errorf("%w: step %d (%s) has no values", ErrInvalidStep, i+1, s.Model)
		}
	}
	return steps, nil
}

// LoadTestFile runs every step of the file at path inside tx.
func LoadTestFile(ctx context.Context, tx pgx.Tx, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open test file: %w", err)
	}
	defer f.Close()

	steps, err := ParseTestFile(f)
	if err != nil {
		return err
	}
	for i, s := range steps {
		if err := runStep(ctx, tx, s); err != nil {
			return fmt.Errorf("test step %d: %w", i+1, err)
		}
	}
	return nil
}

func runStep(ctx context.Context, tx pgx.Tx, s TestStep) error {
	if s.SQL != "" {
		_, err := tx.Exec(ctx, s.SQL)
		return err
	}

	query, args := insertStatement(s.Model, s.Values)
	var id int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return fmt.Errorf("insert %s: %w", s.Model, err)
	}
	if s.ID == "" {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO ir_model_data (module, name, model, res_id)
		VALUES ($1, $2, $3, $4)`, testDataModule, s.ID, s.Model, id)
	if err != nil {
		return fmt.Errorf("record external id %s: %w", s.ID, err)
	}
	return nil
}

// tableName maps a dotted model name to its table.
func tableName(model string) string {
	return strings.ReplaceAll(model, ".", "_")
}

// insertStatement builds a parameterized INSERT returning the new id.
// Columns are sorted so the statement is deterministic.
func insertStatement(model string, values map[string]any) (string, []any) {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[c]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		pgx.Identifier{tableName(model)}.Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
	return query, args
}
