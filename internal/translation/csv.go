package translation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// csvHeader is the column order written on export. Imports match columns by
// name so reordered files load too.
var csvHeader = []string{"module", "type", "name", "res_id", "src", "value"}

// ErrMissingColumn is returned when a CSV file lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

func writeCSV(w io.Writer, terms []Term) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range terms {
		record := []string{t.Module, t.Type, t.Name, t.ResRef(), t.Src, t.Value}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readCSV(r io.Reader) ([]Term, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"src", "value"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	col := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var terms []Term
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		t := Term{
			Module: col(record, "module"),
			Type:   col(record, "type"),
			Name:   col(record, "name"),
			Src:    col(record, "src"),
			Value:  col(record, "value"),
		}
		t.setResRef(col(record, "res_id"))
		if t.Src == "" {
			continue
		}
		terms = append(terms, t)
	}
	return terms, nil
}
