package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/foodform/foodform/internal/schema"
)

// Reasons reported in a FieldError.
const (
	ReasonMissing    = "missing required field"
	ReasonOutOfRange = "value out of range"
	ReasonMalformed  = "malformed row"
)

// ReasonInvalidType is the reason for a value that cannot be converted.
func ReasonInvalidType(ft schema.FieldType) string {
	return "invalid type, expected " + ft.String()
}

// FieldError is a single problem with a single field. Field is empty for
// problems that concern a whole row.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func (e FieldError) Error() string {
	var b strings.Builder
	b.WriteString(e.Reason)
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

// Result is the outcome of validating one record.
type Result struct {
	Errors []FieldError
}

// Valid reports whether no problems were found.
func (r Result) Valid() bool { return len(r.Errors) == 0 }

// Err returns a *ValidationError when the result is invalid, nil otherwise.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Errors: r.Errors}
}

// ValidationError carries the field errors of a rejected record.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ByField indexes the messages by field name; row-level problems are under "".
func (e *ValidationError) ByField() map[string]string {
	m := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		msg := fe.Reason
		if fe.Detail != "" {
			msg += " (" + fe.Detail + ")"
		}
		if prev, ok := m[fe.Field]; ok {
			msg = prev + "; " + msg
		}
		m[fe.Field] = msg
	}
	return m
}

// Validate checks in against t. Undeclared keys are ignored.
func Validate(t *schema.Table, in Values) Result {
	_, res := Normalize(t, in)
	return res
}

// Normalize validates in and returns the typed values of every declared
// field, nil for absent ones. Undeclared keys are dropped. The input map is
// not modified. When the result is invalid the returned values hold whatever
// converted cleanly and must not be persisted.
func Normalize(t *schema.Table, in Values) (Values, Result) {
	out := make(Values, len(t.Fields))
	var res Result

	for _, f := range t.Fields {
		raw, present := in[f.Name]
		if !present || IsNull(raw) {
			out[f.Name] = nil
			if f.Required {
				res.Errors = append(res.Errors, FieldError{Field: f.Name, Reason: ReasonMissing})
			}
			continue
		}

		v, err := Coerce(f.Type, raw)
		if err != nil {
			out[f.Name] = nil
			res.Errors = append(res.Errors, FieldError{Field: f.Name, Reason: ReasonInvalidType(f.Type)})
			continue
		}

		if detail := checkRange(f, v); detail != "" {
			res.Errors = append(res.Errors, FieldError{Field: f.Name, Reason: ReasonOutOfRange, Detail: detail})
		}
		out[f.Name] = v
	}

	return out, res
}

// ValidateBatch validates each row independently; results keep input order.
func ValidateBatch(t *schema.Table, rows []Values) []Result {
	results := make([]Result, len(rows))
	for i, row := range rows {
		results[i] = Validate(t, row)
	}
	return results
}

func checkRange(f schema.Field, v any) string {
	if !f.Type.Numeric() {
		return ""
	}
	var n float64
	switch x := v.(type) {
	case int64:
		n = float64(x)
	case float64:
		n = x
	default:
		return ""
	}
	if f.Min != nil && n < *f.Min {
		return "must be at least " + formatBound(*f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return "must be at most " + formatBound(*f.Max)
	}
	return ""
}

func formatBound(b float64) string {
	return strconv.FormatFloat(b, 'f', -1, 64)
}

// Summary renders errors for a single line of log or CLI output.
func Summary(errs []FieldError) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("%d error(s): %s", len(errs), strings.Join(parts, "; "))
}
