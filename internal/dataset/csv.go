package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LoadOptions controls dataset loading.
type LoadOptions struct {
	// MaxRows limits loaded rows; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, inferred from the file extension.
	Delimiter rune
	// SheetName / SheetIndex select the XLSX sheet (index is 1-based).
	SheetName  string
	SheetIndex int
}

// DefaultLoadOptions caps loading at a size that keeps sandbox staging cheap.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{MaxRows: 500000}
}

// Load reads a tabular file into a Dataset, choosing the reader by extension.
// If name is empty, the file's base name without extension is used.
func Load(path, name string, opt LoadOptions) (*Dataset, error) {
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		return LoadXLSX(path, name, opt)
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".tsv"):
		return LoadCSV(path, name, opt)
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s (want .csv, .tsv or .xlsx)", filepath.Base(path))
	}
}

// LoadCSV reads a CSV/TSV file into a Dataset.
func LoadCSV(path, name string, opt LoadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	delim := opt.Delimiter
	if delim == 0 {
		delim = ','
		if strings.HasSuffix(strings.ToLower(path), ".tsv") {
			delim = '\t'
		}
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty csv: %s", filepath.Base(path))
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = int(^uint(0) >> 1)
	}
	var rows [][]string
	for len(rows) < maxRows {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		cp := make([]string, len(rec))
		copy(cp, rec)
		rows = append(rows, cp)
	}
	d := New(name, header, rows)
	d.Source = path
	return d, nil
}
