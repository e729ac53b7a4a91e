// Package dataset holds the parsed tabular data a user uploads.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrMalformed marks a dataset that cannot be planned.
	ErrMalformed = errors.New("dataset malformed")
	ErrNoColumns = fmt.Errorf("%w: no columns", ErrMalformed)
)

// RaggedRowError reports a row whose width differs from the header.
type RaggedRowError struct {
	Row  int
	Want int
	Got  int
}

func (e *RaggedRowError) Error() string {
	return fmt.Sprintf("dataset malformed: row %d has %d values, want %d", e.Row, e.Got, e.Want)
}

func (e *RaggedRowError) Unwrap() error { return ErrMalformed }

// Dataset is an ordered set of named columns and rows of scalar values.
// It must not be mutated once it has been chunked.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// Validate checks that there is at least one column and that every row has one value per column.
func (d *Dataset) Validate() error {
	if d == nil || len(d.Columns) == 0 {
		return ErrNoColumns
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return &RaggedRowError{Row: i + 1, Want: len(d.Columns), Got: len(row)}
		}
	}
	return nil
}

// Preview returns up to n leading rows.
func (d *Dataset) Preview(n int) [][]string {
	if n <= 0 || len(d.Rows) == 0 {
		return [][]string{}
	}
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	return d.Rows[:n]
}

// Parse reads comma-delimited text whose first record is the header.
// Blank lines are skipped; rows of the wrong width are rejected.
func Parse(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 0
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoColumns
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	ds := &Dataset{Columns: header, Rows: make([][]string, 0, 64)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) && errors.Is(pe.Err, csv.ErrFieldCount) {
				return nil, &RaggedRowError{Row: len(ds.Rows) + 1, Want: len(header), Got: len(rec)}
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		ds.Rows = append(ds.Rows, rec)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}
