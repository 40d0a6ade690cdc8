package store

import (
	"fmt"
	"strings"

	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
)

// Operator is a comparison operator for filter conditions.
type Operator string

const (
	OpContains   Operator = "contains"
	OpEquals     Operator = "eq"
	OpStartsWith Operator = "starts"
	OpEndsWith   Operator = "ends"
	OpGreaterEq  Operator = "gte"
	OpLessEq     Operator = "lte"
	OpGreater    Operator = "gt"
	OpLess       Operator = "lt"
	OpIn         Operator = "in"
)

// Operators lists the supported operators in display order.
var Operators = []Operator{OpContains, OpEquals, OpStartsWith, OpEndsWith, OpGreaterEq, OpLessEq, OpGreater, OpLess, OpIn}

// ParseOperator resolves an operator name; empty means OpEquals.
func ParseOperator(s string) (Operator, bool) {
	if s == "" {
		return OpEquals, true
	}
	for _, op := range Operators {
		if string(op) == strings.ToLower(s) {
			return op, true
		}
	}
	return "", false
}

// DeletedMode selects how soft-deleted records are treated by a query.
type DeletedMode int

const (
	ExcludeDeleted DeletedMode = iota
	IncludeDeleted
	OnlyDeleted
)

// ParseDeletedMode accepts "", "exclude", "include" and "only".
func ParseDeletedMode(s string) (DeletedMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exclude":
		return ExcludeDeleted, true
	case "include":
		return IncludeDeleted, true
	case "only":
		return OnlyDeleted, true
	default:
		return ExcludeDeleted, false
	}
}

func (m DeletedMode) String() string {
	switch m {
	case IncludeDeleted:
		return "include"
	case OnlyDeleted:
		return "only"
	default:
		return "exclude"
	}
}

// Condition is a single filter on a declared field.
type Condition struct {
	Field string
	Op    Operator
	Value string // comma-separated for OpIn
}

// Filter selects records. Conditions are combined with AND.
type Filter struct {
	Conditions []Condition
	Deleted    DeletedMode
	Limit      int // 0 means no limit
	Offset     int
}

// where builds the WHERE clause and its arguments for f.
func (t *Table) where(f Filter) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)

	switch f.Deleted {
	case ExcludeDeleted:
		clauses = append(clauses, quoteIdentifier(schema.ColumnDeleted)+" = 0")
	case OnlyDeleted:
		clauses = append(clauses, quoteIdentifier(schema.ColumnDeleted)+" = 1")
	}

	for _, c := range f.Conditions {
		clause, condArgs, err := t.buildCondition(c)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, condArgs...)
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// buildCondition generates SQL for a single condition. Text matching
// operators are case-insensitive.
func (t *Table) buildCondition(c Condition) (string, []any, error) {
	field, ok := t.def.Field(c.Field)
	if !ok {
		return "", nil, &FilterError{Field: c.Field, Op: c.Op, Msg: "unknown field"}
	}
	col := quoteIdentifier(field.Name)

	switch c.Op {
	case OpContains, OpStartsWith, OpEndsWith:
		if field.Type != schema.TypeString {
			return "", nil, &FilterError{Field: c.Field, Op: c.Op, Msg: "text matching only applies to str fields"}
		}
		pattern := escapeLike(strings.ToLower(strings.TrimSpace(c.Value)))
		switch c.Op {
		case OpContains:
			pattern = "%" + pattern + "%"
		case OpStartsWith:
			pattern = pattern + "%"
		case OpEndsWith:
			pattern = "%" + pattern
		}
		return fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, col), []any{pattern}, nil

	case OpEquals:
		v, err := t.filterValue(field, c)
		if err != nil {
			return "", nil, err
		}
		return col + " = ?", []any{v}, nil

	case OpGreaterEq, OpLessEq, OpGreater, OpLess:
		if field.Type == schema.TypeBoolean {
			return "", nil, &FilterError{Field: c.Field, Op: c.Op, Msg: "ordering does not apply to bool fields"}
		}
		v, err := t.filterValue(field, c)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s ?", col, comparison[c.Op]), []any{v}, nil

	case OpIn:
		parts := strings.Split(c.Value, ",")
		placeholders := make([]string, len(parts))
		args := make([]any, len(parts))
		for i, p := range parts {
			v, err := t.filterValue(field, Condition{Field: c.Field, Op: c.Op, Value: p})
			if err != nil {
				return "", nil, err
			}
			placeholders[i] = "?"
			args[i] = v
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), args, nil

	default:
		return "", nil, &FilterError{Field: c.Field, Op: c.Op, Msg: "unsupported operator"}
	}
}

var comparison = map[Operator]string{
	OpGreaterEq: ">=",
	OpLessEq:    "<=",
	OpGreater:   ">",
	OpLess:      "<",
}

// filterValue coerces a condition value to the field type and encodes it
// the way the column stores it.
func (t *Table) filterValue(field schema.Field, c Condition) (any, error) {
	v, err := record.Coerce(field.Type, strings.TrimSpace(c.Value))
	if err != nil {
		return nil, &FilterError{Field: c.Field, Op: c.Op, Msg: fmt.Sprintf("%q is not a valid %s", c.Value, field.Type)}
	}
	return encodeValue(field.Type, v), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
