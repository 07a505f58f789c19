// Package batch drives bulk execution of one job kind over a sequence of
// inputs loaded from CSV or XLSX files, with per-input failure isolation.
package batch

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// phoneColumns are the header names recognized for the input column,
// checked case-insensitively.
var phoneColumns = []string{"phone_number", "phone", "number", "msisdn"}

// LoadOptions configures input-file parsing.
type LoadOptions struct {
	// Encoding names a character set for CSV files (e.g. "windows-1252").
	// Empty means UTF-8.
	Encoding string
	// Delimiter for CSV files. 0 means ','.
	Delimiter rune
}

// LoadInputs reads raw input strings from a CSV or XLSX file, picking the
// phone column by header name, deduplicating while preserving first-seen
// order. Rows are returned unvalidated; validation is per-input at run
// time so one malformed row never hides the rest of the file.
func LoadInputs(path string, opts LoadOptions) ([]string, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSXRows(path)
	default:
		rows, err = readCSVRows(path, opts)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("batch: %s contains no rows", path)
	}

	col, dataRows, err := pickColumn(rows)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var inputs []string
	for _, row := range dataRows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		inputs = append(inputs, v)
	}
	if len(inputs) == 0 {
		return nil, eris.Errorf("batch: %s contains no usable inputs", path)
	}
	return inputs, nil
}

// pickColumn locates the input column. A recognized header wins; a
// single-column file without one is treated as headerless data.
func pickColumn(rows [][]string) (int, [][]string, error) {
	header := rows[0]
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		for _, want := range phoneColumns {
			if name == want {
				return i, rows[1:], nil
			}
		}
	}
	if len(header) == 1 {
		return 0, rows, nil
	}
	return 0, nil, eris.Errorf(
		"batch: no phone column found (expected one of %s), got header %v",
		strings.Join(phoneColumns, ", "), header,
	)
}

func readCSVRows(path string, opts LoadOptions) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open csv")
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if opts.Encoding != "" {
		enc, err := htmlindex.Get(opts.Encoding)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: unknown encoding %q", opts.Encoding)
		}
		r = transform.NewReader(f, enc.NewDecoder())
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "batch: read csv row")
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func readXLSXRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("batch: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
