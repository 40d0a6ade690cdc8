package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"

	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
)

// Inserter stores one validated record. The record store's Table satisfies it.
type Inserter interface {
	Insert(ctx context.Context, in record.Values) (*record.Record, error)
}

// RowFailure is a valid row that the inserter still rejected.
type RowFailure struct {
	Row     int                 `json:"row"`
	Line    int                 `json:"line"`
	Message string              `json:"message"`
	Errors  []record.FieldError `json:"errors,omitempty"`
}

// CommitResult summarizes a commit.
type CommitResult struct {
	Inserted []string     `json:"inserted"` // new record ids, in row order
	Failed   []RowFailure `json:"failed"`
	Skipped  int          `json:"skipped"` // rows left out because they were invalid
}

// Commit inserts the valid rows of rep in order. Each row is inserted on its
// own; a failed insert is recorded and the remaining rows still go in.
// Cancellation of ctx stops the loop and returns what was done so far.
func Commit(ctx context.Context, ins Inserter, rep *Report) (*CommitResult, error) {
	res := &CommitResult{}

	for _, row := range rep.Rows {
		if !row.Valid() {
			res.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rec, err := ins.Insert(ctx, row.Values)
		if err != nil {
			failure := RowFailure{Row: row.Row, Line: row.Line, Message: err.Error()}
			var verr *record.ValidationError
			if errors.As(err, &verr) {
				failure.Errors = verr.Errors
			}
			res.Failed = append(res.Failed, failure)
			continue
		}
		res.Inserted = append(res.Inserted, rec.ID)
	}

	return res, nil
}

// Template returns a header-only CSV naming every field of t.
func Template(t *schema.Table) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write(t.FieldNames())
	w.Flush()
	return b.String()
}
