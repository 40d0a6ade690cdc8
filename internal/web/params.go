package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/foodform/foodform/internal/core"
	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
	"github.com/foodform/foodform/internal/store"
	"github.com/foodform/foodform/internal/web/templates"
)

// maxJSONBody bounds JSON request bodies for record endpoints.
const maxJSONBody = 1 << 20

func tableParam(r *http.Request) string {
	return chi.URLParam(r, "table")
}

// parseFilter reads a record filter from the query string:
//
//	filter[<field>]=<value>  op[<field>]=<operator>
//	deleted=exclude|include|only  limit=N  offset=N
//
// Empty filter values are ignored. The returned state echoes the selection
// back to the filter bar.
func parseFilter(r *http.Request, t *schema.Table) (store.Filter, templates.FilterState, error) {
	q := r.URL.Query()
	var (
		f  store.Filter
		st = templates.FilterState{
			Values: make(map[string]string),
			Ops:    make(map[string]string),
		}
	)

	for _, field := range t.Fields {
		v := q.Get("filter[" + field.Name + "]")
		opName := q.Get("op[" + field.Name + "]")
		if v == "" {
			continue
		}
		op, ok := store.ParseOperator(opName)
		if !ok {
			return f, st, &store.FilterError{Field: field.Name, Op: store.Operator(opName), Msg: "unsupported operator"}
		}
		st.Values[field.Name] = v
		st.Ops[field.Name] = string(op)
		f.Conditions = append(f.Conditions, store.Condition{Field: field.Name, Op: op, Value: v})
	}

	deleted := q.Get("deleted")
	mode, ok := store.ParseDeletedMode(deleted)
	if !ok {
		return f, st, fmt.Errorf("%w: deleted must be exclude, include or only", core.ErrInvalidInput)
	}
	f.Deleted = mode
	if mode != store.ExcludeDeleted {
		st.Deleted = mode.String()
	}

	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return f, st, err
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		return f, st, err
	}
	return f, st, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative integer", core.ErrInvalidInput, s)
	}
	return n, nil
}

// parseFormValues collects the declared fields from a submitted form. The
// raw text is returned too so a rejected form can be shown again as typed.
func parseFormValues(r *http.Request, t *schema.Table) (record.Values, map[string]string, error) {
	if err := r.ParseForm(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	in := make(record.Values, len(t.Fields))
	raw := make(map[string]string, len(t.Fields))
	for _, f := range t.Fields {
		v := r.PostForm.Get(f.Name)
		raw[f.Name] = v
		in[f.Name] = v
	}
	return in, raw, nil
}

// decodeJSONValues reads a JSON object of field values. Numbers are kept
// as json.Number so integers survive without float rounding.
func decodeJSONValues(w http.ResponseWriter, r *http.Request) (record.Values, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.UseNumber()

	var in record.Values
	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty body", core.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	if in == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", core.ErrInvalidInput)
	}
	return in, nil
}

// parseDelimiter reads an optional one-character CSV delimiter. "tab" is
// accepted for convenience.
func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w: delimiter must be a single character", core.ErrInvalidInput)
	}
	d, _ := utf8.DecodeRuneInString(s)
	return d, nil
}

// notices maps redirect notice codes to banner text.
var notices = map[string]string{
	"created":   "Record saved.",
	"updated":   "Record updated.",
	"deleted":   "Record deleted. It can be restored from the list below.",
	"restored":  "Record restored.",
	"imported":  "Import committed.",
	"discarded": "Import discarded.",
}
