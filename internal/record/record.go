// Package record defines the record model and the schema-driven validator.
//
// Validation is pure: it reads a schema table and a set of candidate values
// and reports every problem found, in schema field order. Nothing here touches
// storage, so the same rules apply to form submissions, API calls and CSV
// import rows.
package record

import (
	"time"

	"github.com/foodform/foodform/internal/schema"
)

// Values maps field names to values. Input values may be raw strings or
// native Go values; normalized values use the types listed on [Coerce].
type Values map[string]any

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// Record is a stored row: declared field values plus system metadata.
type Record struct {
	ID        string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Deleted   bool
	Fields    Values
}

// Map flattens the record into JSON-ready values. Dates and datetimes are
// rendered in their canonical text forms; absent fields are null.
func (r *Record) Map(t *schema.Table) map[string]any {
	m := make(map[string]any, len(t.Fields)+5)
	m[schema.ColumnID] = r.ID
	for _, f := range t.Fields {
		v := r.Fields[f.Name]
		switch {
		case v == nil:
			m[f.Name] = nil
		case f.Type == schema.TypeDate || f.Type == schema.TypeDatetime:
			m[f.Name] = Format(f.Type, v)
		default:
			m[f.Name] = v
		}
	}
	m[schema.ColumnVersion] = r.Version
	m[schema.ColumnCreatedAt] = r.CreatedAt.UTC().Format(DatetimeLayout)
	m[schema.ColumnUpdatedAt] = r.UpdatedAt.UTC().Format(DatetimeLayout)
	m[schema.ColumnDeleted] = r.Deleted
	return m
}

// Text returns the display text of a field, or "" when absent.
func (r *Record) Text(f schema.Field) string {
	return Format(f.Type, r.Fields[f.Name])
}
