// Package importer turns tabular text into validated candidate records.
//
// Import is two-phase. Analyze reads the whole input, maps header columns to
// schema fields and validates every row, producing a Report that lists
// per-row problems without touching storage. Commit then inserts only the
// rows that passed. A bad row never stops the analysis of the rows after it.
package importer

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
)

var (
	// ErrEmptyInput is returned when the input has no header row.
	ErrEmptyInput = errors.New("import input is empty")

	// ErrDuplicateHeader is returned when two header cells name the same column.
	ErrDuplicateHeader = errors.New("duplicate column in header")

	// ErrTooManyRows is returned when the input exceeds Options.MaxRows.
	ErrTooManyRows = errors.New("import exceeds the maximum number of rows")

	// ErrUnreadable is returned when a workbook cannot be opened.
	ErrUnreadable = errors.New("file could not be read")
)

// Options tunes Analyze.
type Options struct {
	// Delimiter overrides delimiter sniffing for CSV text. Zero means sniff.
	Delimiter rune

	// MaxRows caps the number of data rows. Zero means no limit.
	MaxRows int
}

// RowResult is the analysis of one data row.
type RowResult struct {
	Row    int                 `json:"row"`  // 1-based data row number
	Line   int                 `json:"line"` // line (or sheet row) where the row starts
	Values record.Values       `json:"-"`
	Errors []record.FieldError `json:"errors,omitempty"`
}

// Valid reports whether the row can be committed.
func (r RowResult) Valid() bool { return len(r.Errors) == 0 }

// Report is the outcome of analyzing one input.
type Report struct {
	Table          string      `json:"table"`
	Columns        []string    `json:"columns"`         // matched fields, in header order
	IgnoredColumns []string    `json:"ignored_columns"` // header cells matching no field
	MissingColumns []string    `json:"missing_columns"` // required fields absent from the header
	Total          int         `json:"total"`
	Valid          int         `json:"valid"`
	Invalid        int         `json:"invalid"`
	Rows           []RowResult `json:"rows"`
}

// InvalidRows returns the rows that failed validation, in input order.
func (r *Report) InvalidRows() []RowResult {
	var out []RowResult
	for _, row := range r.Rows {
		if !row.Valid() {
			out = append(out, row)
		}
	}
	return out
}

// Analyze reads CSV text and validates every row against t.
func Analyze(t *schema.Table, r io.Reader, opts Options) (*Report, error) {
	src, err := newCSVSource(r, opts.Delimiter)
	if err != nil {
		return nil, err
	}
	return analyze(t, src, opts)
}

// AnalyzeFile dispatches on the file name: .xlsx files are read as
// spreadsheets, everything else as CSV text.
func AnalyzeFile(t *schema.Table, name string, r io.Reader, opts Options) (*Report, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return AnalyzeXLSX(t, r, opts)
	}
	return Analyze(t, r, opts)
}

// AnalyzeXLSX reads the first sheet of a workbook and validates every row.
func AnalyzeXLSX(t *schema.Table, r io.Reader, opts Options) (*Report, error) {
	src, err := newXLSXSource(r)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return analyze(t, src, opts)
}

func analyze(t *schema.Table, src rowSource, opts Options) (*Report, error) {
	header, _, err := firstRow(src)
	if err != nil {
		return nil, err
	}

	mapping, rep, err := mapHeader(t, header)
	if err != nil {
		return nil, err
	}

	for {
		cells, line, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		var malformed *malformedRowError
		switch {
		case errors.As(err, &malformed):
			// Counted and reported below.
		case err != nil:
			return nil, fmt.Errorf("read row at line %d: %w", line, err)
		case isEmptyRow(cells):
			continue
		}

		rep.Total++
		if opts.MaxRows > 0 && rep.Total > opts.MaxRows {
			return nil, fmt.Errorf("%w (%d)", ErrTooManyRows, opts.MaxRows)
		}

		row := RowResult{Row: rep.Total, Line: line}
		switch {
		case malformed != nil:
			row.Errors = []record.FieldError{{Reason: record.ReasonMalformed, Detail: malformed.msg}}
		case len(cells) > len(header) && !isEmptyRow(cells[len(header):]):
			row.Errors = []record.FieldError{{
				Reason: record.ReasonMalformed,
				Detail: fmt.Sprintf("expected %d columns, got %d", len(header), len(cells)),
			}}
		case len(cells) < len(header) && !src.Ragged():
			row.Errors = []record.FieldError{{
				Reason: record.ReasonMalformed,
				Detail: fmt.Sprintf("expected %d columns, got %d", len(header), len(cells)),
			}}
		default:
			vals, res := record.Normalize(t, candidate(t, cells, mapping))
			row.Values = vals
			row.Errors = res.Errors
		}

		if row.Valid() {
			rep.Valid++
		} else {
			rep.Invalid++
		}
		rep.Rows = append(rep.Rows, row)
	}

	return rep, nil
}

// firstRow returns the first non-empty row, the header.
func firstRow(src rowSource) ([]string, int, error) {
	for {
		cells, line, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil, 0, ErrEmptyInput
		}
		var malformed *malformedRowError
		if errors.As(err, &malformed) {
			return nil, line, fmt.Errorf("header at line %d is malformed: %s", line, malformed.msg)
		}
		if err != nil {
			return nil, line, fmt.Errorf("read header: %w", err)
		}
		if !isEmptyRow(cells) {
			return cells, line, nil
		}
	}
}

// mapHeader matches header cells to fields, case-insensitively after
// cleaning. The result maps column positions to field names; unmatched
// columns map to "".
func mapHeader(t *schema.Table, header []string) ([]string, *Report, error) {
	byLower := make(map[string]string, len(t.Fields))
	for _, f := range t.Fields {
		byLower[strings.ToLower(f.Name)] = f.Name
	}

	rep := &Report{Table: t.Name}
	mapping := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	present := make(map[string]bool, len(header))

	for i, h := range header {
		name := record.CleanCell(h)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateHeader, name)
		}
		seen[key] = true

		field, ok := byLower[key]
		if !ok {
			rep.IgnoredColumns = append(rep.IgnoredColumns, name)
			continue
		}
		mapping[i] = field
		present[field] = true
		rep.Columns = append(rep.Columns, field)
	}

	for _, name := range t.Required() {
		if !present[name] {
			rep.MissingColumns = append(rep.MissingColumns, name)
		}
	}
	return mapping, rep, nil
}

// candidate builds the raw values of a row. Empty cells are left absent.
// Text cells keep their quotes and leading "=" so that import stores the
// same text a form would.
func candidate(t *schema.Table, cells []string, mapping []string) record.Values {
	vals := make(record.Values, len(mapping))
	for i, field := range mapping {
		if field == "" || i >= len(cells) {
			continue
		}
		clean := record.CleanCell
		if f, ok := t.Field(field); ok && f.Type == schema.TypeString {
			clean = record.CleanText
		}
		if cell := clean(cells[i]); cell != "" {
			vals[field] = cell
		}
	}
	return vals
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
