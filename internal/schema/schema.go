// Package schema loads the declarative table definitions that drive
// validation, storage, forms and exports.
//
// A schema maps table names to an ordered list of fields. Each field has a
// semantic type, a required flag, optional numeric bounds and a description.
// The same schema may be written in YAML or TOML; both encodings produce an
// identical in-memory [Schema], including field order.
package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldType is the semantic type of a field.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeDate
	TypeDatetime
)

// String returns the canonical type tag used in schema files.
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "str"
	case TypeInteger:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "bool"
	case TypeDate:
		return "date"
	case TypeDatetime:
		return "datetime"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Numeric reports whether min/max bounds apply to the type.
func (t FieldType) Numeric() bool {
	return t == TypeInteger || t == TypeFloat
}

// typeTags maps accepted tags (lowercase) to field types. The long forms are
// accepted for compatibility with older schema files.
var typeTags = map[string]FieldType{
	"str":      TypeString,
	"string":   TypeString,
	"int":      TypeInteger,
	"integer":  TypeInteger,
	"float":    TypeFloat,
	"bool":     TypeBoolean,
	"boolean":  TypeBoolean,
	"date":     TypeDate,
	"datetime": TypeDatetime,
}

// ParseFieldType resolves a type tag. Matching is case-insensitive.
func ParseFieldType(tag string) (FieldType, bool) {
	t, ok := typeTags[strings.ToLower(strings.TrimSpace(tag))]
	return t, ok
}

// Reserved column names managed by the record store.
const (
	ColumnID        = "id"
	ColumnVersion   = "version"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
	ColumnDeleted   = "deleted"
)

var reserved = map[string]bool{
	ColumnID:        true,
	ColumnVersion:   true,
	ColumnCreatedAt: true,
	ColumnUpdatedAt: true,
	ColumnDeleted:   true,
}

// IsReserved reports whether name is a system column.
func IsReserved(name string) bool {
	return reserved[strings.ToLower(name)]
}

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Field describes a single declared column.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Min         *float64 // nil when not declared
	Max         *float64 // nil when not declared
	Description string
}

// Label returns the description if present, otherwise the field name.
func (f Field) Label() string {
	if f.Description != "" {
		return f.Description
	}
	return f.Name
}

// Table is an ordered set of fields.
type Table struct {
	Name   string
	Fields []Field

	index map[string]int
}

// NewTable builds a table from fields and checks the table-level invariants:
// valid unique names, no reserved names, and consistent bounds.
func NewTable(name string, fields []Field) (*Table, error) {
	if !identRegex.MatchString(name) {
		return nil, &Error{Table: name, Msg: "table name must be a letter or underscore followed by letters, digits or underscores"}
	}
	if len(fields) == 0 {
		return nil, &Error{Table: name, Msg: "table declares no fields"}
	}

	t := &Table{
		Name:   name,
		Fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	seen := make(map[string]bool, len(fields))

	for _, f := range fields {
		if !identRegex.MatchString(f.Name) {
			return nil, &Error{Table: name, Field: f.Name, Msg: "field name must be a letter or underscore followed by letters, digits or underscores"}
		}
		if IsReserved(f.Name) {
			return nil, &Error{Table: name, Field: f.Name, Msg: "field name is reserved for system columns"}
		}
		key := strings.ToLower(f.Name)
		if seen[key] {
			return nil, &Error{Table: name, Field: f.Name, Msg: "duplicate field name"}
		}
		seen[key] = true

		if (f.Min != nil || f.Max != nil) && !f.Type.Numeric() {
			return nil, &Error{Table: name, Field: f.Name, Msg: fmt.Sprintf("min/max are only allowed on int and float fields, not %s", f.Type)}
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return nil, &Error{Table: name, Field: f.Name, Msg: fmt.Sprintf("min (%g) is greater than max (%g)", *f.Min, *f.Max)}
		}

		t.index[f.Name] = len(t.Fields)
		t.Fields = append(t.Fields, f)
	}

	return t, nil
}

// Field looks up a field by its exact name.
func (t *Table) Field(name string) (Field, bool) {
	i, ok := t.index[name]
	if !ok {
		return Field{}, false
	}
	return t.Fields[i], true
}

// FieldNames returns field names in declaration order.
func (t *Table) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// Required returns the names of required fields in declaration order.
func (t *Table) Required() []string {
	var names []string
	for _, f := range t.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Schema is the full set of tables loaded from one schema file.
type Schema struct {
	Tables []*Table

	byName map[string]*Table
}

// New assembles a schema from tables. Table names must be unique
// (case-insensitively, since SQL identifiers are).
func New(tables []*Table) (*Schema, error) {
	if len(tables) == 0 {
		return nil, &Error{Msg: "schema declares no tables"}
	}
	s := &Schema{
		Tables: tables,
		byName: make(map[string]*Table, len(tables)),
	}
	seen := make(map[string]bool, len(tables))
	for _, t := range tables {
		key := strings.ToLower(t.Name)
		if seen[key] {
			return nil, &Error{Table: t.Name, Msg: "duplicate table name"}
		}
		seen[key] = true
		s.byName[t.Name] = t
	}
	return s, nil
}

// Table returns the named table.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// TableNames returns table names in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// Error is a fatal schema problem. Table and Field name the offending
// definition when known.
type Error struct {
	Table string
	Field string
	Msg   string
}

func (e *Error) Error() string {
	switch {
	case e.Table != "" && e.Field != "":
		return fmt.Sprintf("schema: table %q, field %q: %s", e.Table, e.Field, e.Msg)
	case e.Table != "":
		return fmt.Sprintf("schema: table %q: %s", e.Table, e.Msg)
	default:
		return "schema: " + e.Msg
	}
}
