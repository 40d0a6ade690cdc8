// Package export writes records as CSV text or Excel workbooks.
//
// Both formats share one column layout: id, the declared fields in schema
// order, then version, created_at and updated_at. Exports that may contain
// soft-deleted records carry a trailing deleted column.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves a format name; empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (expected csv or xlsx)", s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename suggests a download name such as food_consumption_20240315.csv.
func Filename(table string, f Format, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", table, now.Format("20060102"), f)
}

// Options shapes the column layout.
type Options struct {
	// Deleted adds the deleted column. Set it whenever the records may
	// include soft-deleted ones.
	Deleted bool
}

// Header returns the column names of an export of t.
func Header(t *schema.Table, opts Options) []string {
	cols := make([]string, 0, len(t.Fields)+5)
	cols = append(cols, schema.ColumnID)
	cols = append(cols, t.FieldNames()...)
	cols = append(cols, schema.ColumnVersion, schema.ColumnCreatedAt, schema.ColumnUpdatedAt)
	if opts.Deleted {
		cols = append(cols, schema.ColumnDeleted)
	}
	return cols
}

// Row renders a record as text cells in Header order.
func Row(t *schema.Table, rec *record.Record, opts Options) []string {
	row := make([]string, 0, len(t.Fields)+5)
	row = append(row, rec.ID)
	for _, f := range t.Fields {
		row = append(row, rec.Text(f))
	}
	row = append(row,
		fmt.Sprint(rec.Version),
		rec.CreatedAt.UTC().Format(record.DatetimeLayout),
		rec.UpdatedAt.UTC().Format(record.DatetimeLayout),
	)
	if opts.Deleted {
		row = append(row, strconv.FormatBool(rec.Deleted))
	}
	return row
}

// Write dispatches to CSV or XLSX.
func Write(w io.Writer, f Format, t *schema.Table, recs []*record.Record, opts Options) error {
	switch f {
	case FormatCSV:
		return CSV(w, t, recs, opts)
	case FormatXLSX:
		return XLSX(w, t, recs, opts)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

// CSV writes recs as comma-separated text with a header row.
func CSV(w io.Writer, t *schema.Table, recs []*record.Record, opts Options) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(t, opts)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range recs {
		if err := cw.Write(Row(t, rec, opts)); err != nil {
			return fmt.Errorf("write record %s: %w", rec.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

// XLSX writes recs as a workbook with one sheet named after the table.
// Numeric fields are written as numbers, everything else as text.
func XLSX(w io.Writer, t *schema.Table, recs []*record.Record, opts Options) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Name
	if len(sheet) > maxSheetName {
		sheet = sheet[:maxSheetName]
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := Header(t, opts)
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, rec := range recs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := cells(t, rec, opts)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write record %s: %w", rec.ID, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// cells is Row with numeric fields kept as numbers.
func cells(t *schema.Table, rec *record.Record, opts Options) []any {
	text := Row(t, rec, opts)
	out := make([]any, len(text))
	for i, s := range text {
		out[i] = s
	}
	for i, f := range t.Fields {
		v := rec.Fields[f.Name]
		if v == nil {
			continue
		}
		switch f.Type {
		case schema.TypeInteger:
			if n, err := record.ToInteger(v); err == nil {
				out[i+1] = n
			}
		case schema.TypeFloat:
			if x, err := record.ToFloat(v); err == nil {
				out[i+1] = x
			}
		}
	}
	out[len(t.Fields)+1] = rec.Version
	return out
}
