// Package templates renders the HTML pages of the entry form.
//
// Components are written in .templ files; run `mage generate` after editing
// them to refresh the *_templ.go files next to them.
package templates

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/foodform/foodform/internal/importer"
	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
)

// Nav is the table switcher shown on every page.
type Nav struct {
	Tables  []string
	Current string
}

// TablePath returns the page URL of a table.
func TablePath(table string) string {
	return "/tables/" + url.PathEscape(table)
}

// RecordPath returns the base URL of one record, without trailing slash.
func RecordPath(table, id string) string {
	return TablePath(table) + "/records/" + url.PathEscape(id)
}

// ImportPath returns the base URL of a pending import.
func ImportPath(id string) string {
	return "/imports/" + url.PathEscape(id)
}

// FormState is what an entry or edit form shows: the submitted (or stored)
// text of each field and the validation messages keyed by field name.
type FormState struct {
	Values map[string]string
	Errors map[string]string
}

// FormStateOf fills a form from a stored record.
func FormStateOf(t *schema.Table, rec *record.Record) FormState {
	st := FormState{Values: make(map[string]string, len(t.Fields))}
	for _, f := range t.Fields {
		st.Values[f.Name] = inputValue(f, rec.Fields[f.Name])
	}
	return st
}

// FilterState is the current filter bar selection.
type FilterState struct {
	Values  map[string]string // field -> filter text
	Ops     map[string]string // field -> operator
	Deleted string            // "", "include" or "only"
}

// Query encodes the filter as URL query parameters.
func (f FilterState) Query() url.Values {
	q := url.Values{}
	for field, v := range f.Values {
		if v == "" {
			continue
		}
		q.Set("filter["+field+"]", v)
		if op := f.Ops[field]; op != "" {
			q.Set("op["+field+"]", op)
		}
	}
	if f.Deleted != "" {
		q.Set("deleted", f.Deleted)
	}
	return q
}

// opFor is the operator preselected for a field.
func (f FilterState) opFor(field schema.Field) string {
	if op := f.Ops[field.Name]; op != "" {
		return op
	}
	if field.Type == schema.TypeString {
		return "contains"
	}
	return "eq"
}

// TablePageData is everything the table page shows.
type TablePageData struct {
	Nav       Nav
	Table     *schema.Table
	Operators []string

	Form   FormState
	Filter FilterState

	Records []*record.Record
	Total   int64

	DeletedRecords []*record.Record

	Notice string
	Error  templ.Component
}

// EditPageData is the edit form of one record.
type EditPageData struct {
	Nav    Nav
	Table  *schema.Table
	Record *record.Record
	Form   FormState
	Error  templ.Component
}

// maxPreviewRows bounds how many rows the preview lists.
const maxPreviewRows = 200

// ImportPreviewData describes a pending import.
type ImportPreviewData struct {
	Nav       Nav
	ID        string
	FileName  string
	ExpiresAt time.Time
	Report    *importer.Report
}

type option struct {
	value string
	label string
}

var (
	boolOptions    = []option{{"", ""}, {"true", "true"}, {"false", "false"}}
	deletedOptions = []option{{"", "hide"}, {"include", "include"}, {"only", "only"}}
)

// labelText marks required fields with an asterisk.
func labelText(f schema.Field) string {
	if f.Required {
		return f.Label() + " *"
	}
	return f.Label()
}

func inputType(ft schema.FieldType) string {
	switch ft {
	case schema.TypeInteger, schema.TypeFloat:
		return "number"
	case schema.TypeDate:
		return "date"
	case schema.TypeDatetime:
		return "datetime-local"
	default:
		return "text"
	}
}

func inputStep(ft schema.FieldType) string {
	switch ft {
	case schema.TypeInteger, schema.TypeDatetime:
		return "1"
	case schema.TypeFloat:
		return "any"
	default:
		return ""
	}
}

func boundText(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// inputValue renders a stored value the way the matching input expects.
func inputValue(f schema.Field, v any) string {
	if f.Type == schema.TypeDatetime && v != nil {
		if t, err := record.ToDatetime(v); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05")
		}
	}
	return record.Format(f.Type, v)
}

type exportLink struct {
	format string
	href   string
}

// exportLinks points the download links at the current filter.
func exportLinks(d TablePageData) []exportLink {
	q := d.Filter.Query()
	base := "/api" + TablePath(d.Table.Name) + "/export?"
	links := make([]exportLink, 0, 2)
	for _, format := range []string{"csv", "xlsx"} {
		q.Set("format", format)
		links = append(links, exportLink{format: format, href: base + q.Encode()})
	}
	return links
}

func previewRows(rep *importer.Report) []importer.RowResult {
	if len(rep.Rows) > maxPreviewRows {
		return rep.Rows[:maxPreviewRows]
	}
	return rep.Rows
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
