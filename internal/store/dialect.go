package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/foodform/foodform/internal/schema"
)

// dialect captures the few places SQLite and PostgreSQL differ.
type dialect struct {
	name        string
	integerType string
	floatType   string
	numbered    bool // $1, $2 placeholders instead of ?
}

var dialects = map[string]dialect{
	DriverSQLite: {
		name:        "sqlite",
		integerType: "INTEGER",
		floatType:   "REAL",
	},
	DriverPostgres: {
		name:        "postgres",
		integerType: "BIGINT",
		floatType:   "DOUBLE PRECISION",
		numbered:    true,
	},
}

// columnType maps a field type to a column type. Dates and datetimes are
// stored as fixed-width text so that text comparison orders them correctly;
// booleans are stored as 0/1.
func (d dialect) columnType(ft schema.FieldType) string {
	switch ft {
	case schema.TypeInteger, schema.TypeBoolean:
		return d.integerType
	case schema.TypeFloat:
		return d.floatType
	default:
		return "TEXT"
	}
}

func (d dialect) createTable(def *schema.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdentifier(def.Name))
	fmt.Fprintf(&b, "\t%s TEXT PRIMARY KEY,\n", quoteIdentifier(schema.ColumnID))
	for _, f := range def.Fields {
		fmt.Fprintf(&b, "\t%s %s,\n", quoteIdentifier(f.Name), d.columnType(f.Type))
	}
	fmt.Fprintf(&b, "\t%s %s NOT NULL,\n", quoteIdentifier(schema.ColumnVersion), d.integerType)
	fmt.Fprintf(&b, "\t%s TEXT NOT NULL,\n", quoteIdentifier(schema.ColumnCreatedAt))
	fmt.Fprintf(&b, "\t%s TEXT NOT NULL,\n", quoteIdentifier(schema.ColumnUpdatedAt))
	fmt.Fprintf(&b, "\t%s %s NOT NULL DEFAULT 0\n", quoteIdentifier(schema.ColumnDeleted), d.integerType)
	b.WriteString(")")
	return b.String()
}

// rebind rewrites ? placeholders for dialects that number them. Queries
// built here never contain a literal question mark.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
