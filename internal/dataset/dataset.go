package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindDatetime    Kind = "datetime"
	KindCategorical Kind = "categorical"
	KindText        Kind = "text"
	KindUnknown     Kind = "unknown"
)

// Dataset is a named tabular value owned by the session registry. Columns are
// ordered; cell values are kept as their source strings and typed by the
// derived schema. Executions receive deep copies, never the canonical value.
type Dataset struct {
	Name        string
	Description string
	Source      string
	Header      []string
	Rows        [][]string

	schema *SchemaSummary
}

// New builds a Dataset from a header and rows. Short rows are padded so every
// row has exactly len(header) cells.
func New(name string, header []string, rows [][]string) *Dataset {
	ncol := len(header)
	for i, row := range rows {
		if len(row) < ncol {
			tmp := make([]string, ncol)
			copy(tmp, row)
			rows[i] = tmp
		} else if len(row) > ncol {
			rows[i] = row[:ncol]
		}
	}
	return &Dataset{Name: name, Header: header, Rows: rows}
}

// RowCount reports the number of data rows (header excluded).
func (d *Dataset) RowCount() int { return len(d.Rows) }

// HasColumn reports whether the dataset has a column with the given name
// (case-insensitive).
func (d *Dataset) HasColumn(name string) bool {
	for _, h := range d.Header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// Schema returns the derived schema summary, computing it on first use.
func (d *Dataset) Schema() SchemaSummary {
	if d.schema == nil {
		s := summarize(d.Name, d.Header, d.Rows, defaultSampleRows)
		s.Description = d.Description
		d.schema = &s
	}
	return *d.schema
}

// Copy returns a deep copy. Mutations of the copy cannot reach the original.
func (d *Dataset) Copy() *Dataset {
	header := make([]string, len(d.Header))
	copy(header, d.Header)
	rows := make([][]string, len(d.Rows))
	for i, row := range d.Rows {
		rc := make([]string, len(row))
		copy(rc, row)
		rows[i] = rc
	}
	return &Dataset{
		Name:        d.Name,
		Description: d.Description,
		Source:      d.Source,
		Header:      header,
		Rows:        rows,
	}
}

// WriteCSV streams the dataset as RFC 4180 CSV, header first. This is the wire
// format handed to the sandbox.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range d.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
