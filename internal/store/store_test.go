package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
)

const testSchema = `
food_consumption:
  commodity: {type: str, required: true}
  age_group: {type: str, required: true}
  mean_consumption_chronic: {type: float, min: 0, max: 1000}
  servings: {type: int}
  organic: {type: bool}
  sampled_on: {type: date}
`

// fakeClock advances one second every time it is read.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func loadSchema(t *testing.T, src string) *schema.Schema {
	t.Helper()
	s, err := schema.Load(strings.NewReader(src), schema.FormatYAML)
	require.NoError(t, err)
	return s
}

func openTestTable(t *testing.T) (*Table, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	db, err := Open(context.Background(), Options{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "data", "food.db"),
		Now:    clock.Now,
	}, loadSchema(t, testSchema))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tbl, err := db.Table("food_consumption")
	require.NoError(t, err)
	return tbl, clock
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "food.db")
	db, err := Open(context.Background(), Options{DSN: path}, loadSchema(t, testSchema))
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
	assert.NoError(t, db.Ping(context.Background()))
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	sch := loadSchema(t, testSchema)

	_, err := Open(ctx, Options{Driver: "oracle", DSN: "x"}, sch)
	assert.ErrorContains(t, err, "unsupported driver")

	_, err = Open(ctx, Options{DSN: ""}, sch)
	assert.ErrorContains(t, err, "required")

	_, err = Open(ctx, Options{DSN: filepath.Join(t.TempDir(), "x.db")}, nil)
	assert.ErrorContains(t, err, "schema is required")
}

func TestOpen_AddsNewlyDeclaredColumns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "food.db")

	db, err := Open(ctx, Options{DSN: path}, loadSchema(t, testSchema))
	require.NoError(t, err)
	tbl, err := db.Table("food_consumption")
	require.NoError(t, err)
	first, err := tbl.Insert(ctx, record.Values{"commodity": "rice", "age_group": "adult"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	extended := testSchema + "  notes: {type: str}\n"
	db, err = Open(ctx, Options{DSN: path}, loadSchema(t, extended))
	require.NoError(t, err)
	defer db.Close()

	tbl, err = db.Table("food_consumption")
	require.NoError(t, err)

	got, err := tbl.Get(ctx, first.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "rice", got.Fields["commodity"])
	assert.Nil(t, got.Fields["notes"])

	updated, err := tbl.Update(ctx, first.ID, record.Values{"notes": "added later"})
	require.NoError(t, err)
	assert.Equal(t, "added later", updated.Fields["notes"])
}

func TestDB_UnknownTable(t *testing.T) {
	tbl, _ := openTestTable(t)
	_, err := tbl.db.Table("nope")
	assert.True(t, errors.Is(err, ErrUnknownTable))
}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	tbl, _ := openTestTable(t)

	rec, err := tbl.Insert(ctx, record.Values{
		"commodity":                "rice",
		"age_group":                "adult",
		"mean_consumption_chronic": "12.5",
		"servings":                 "2",
		"organic":                  "yes",
		"sampled_on":               "2024-03-15",
		"id":                       "client-supplied-id",
	})
	require.NoError(t, err)

	assert.NotEqual(t, "client-supplied-id", rec.ID)
	assert.Len(t, rec.ID, 36)
	assert.Equal(t, int64(1), rec.Version)
	assert.False(t, rec.Deleted)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)

	got, err := tbl.Get(ctx, rec.ID, false)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, "rice", got.Fields["commodity"])
	assert.Equal(t, 12.5, got.Fields["mean_consumption_chronic"])
	assert.Equal(t, int64(2), got.Fields["servings"])
	assert.Equal(t, true, got.Fields["organic"])
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got.Fields["sampled_on"])
}

func TestInsert_ValidationFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	tbl, _ := openTestTable(t)

	_, err := tbl.Insert(ctx, record.Values{"commodity": "wheat", "age_group": "child", "mean_consumption_chronic": 1500.0})

	var verr *record.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Errors, 1)
	assert.Equal(t, "mean_consumption_chronic", verr.Errors[0].Field)
	assert.Equal(t, record.ReasonOutOfRange, verr.Errors[0].Reason)

	n, err := tbl.Count(ctx, Filter{Deleted: IncludeDeleted})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	tbl, _ := openTestTable(t)

	rec, err := tbl.Insert(ctx, record.Values{"commodity": "rice", "age_group": "adult", "servings": 3})
	require.NoError(t, err)

	updated, err := tbl.Update(ctx, rec.ID, record.Values{"age_group": "child", "servings": nil})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.True(t, updated.UpdatedAt.After(rec.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(rec.CreatedAt))
	assert.Equal(t, "rice", updated.Fields["commodity"], "unspecified fields are kept")
	assert.Equal(t, "child", updated.Fields["age_group"])
	assert.Nil(t, updated.Fields["servings"], "nil clears the field")

	again, err := tbl.Update(ctx, rec.ID, record.Values{"commodity": "brown rice"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.Version)

	got, err := tbl.Get(ctx, rec.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, "brown rice", got.Fields["commodity"])
	assert.True(t, got.UpdatedAt.Equal(again.UpdatedAt))
}

func TestUpdate_RejectsInvalidMerge(t *testing.T) {
	ctx := context.Background()
	tbl, _ := openTestTable(t)

	rec, err := tbl.Insert(ctx, record.Values{"commodity": "rice", "age_group": "adult"})
	require.NoError(t, err)

	_, err = tbl.Update(ctx, rec.ID, record.Values{"commodity": ""})
	var verr *record.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "commodity", verr.Errors[0].Field)
	assert.Equal(t, record.ReasonMissing, verr.Errors[0].Reason)

	got, err := tbl.Get(ctx, rec.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version, "rejected update must not write")
	assert.Equal(t, "rice", got.Fields["commodity"])
}

func TestUpdate_MissingOrDeleted(t *testing.T) {
	ctx := context.Background()
	tbl, _ := openTestTable(t)

	_, err := tbl.Update(ctx, "does-not-exist", record.Values{"commodity": "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := tbl.Insert(ctx, record.Values{"commodity": "rice", "age_group": "adult"})
	require.NoError(t, err)
	require.NoError(t, tbl.SoftDelete(ctx, rec.ID))

	_, err = tbl.Update(ctx, rec.ID, record.Values{"commodity": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	tbl, _ := openTestTable(t)

	rec, err := tbl.Insert(ctx, record.Values{"commodity": "rice", "age_group": "adult"})
	require.NoError(t, err)
	other, err := tbl.Insert(ctx, record.Values{"commodity": "wheat", "age_group": "child"})
	require.NoError(t, err)

	require.NoError(t, tbl.SoftDelete(ctx, rec.ID))

	// Hidden from normal reads
	_, err = tbl.Get(ctx, rec.ID, false)
	assert.ErrorIs(t, err, ErrNotFound)
	live, err := tbl.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, other.ID, live[0].ID)

	// Still stored, flagged, with version and timestamp untouched
	stored, err := tbl.Get(ctx, rec.ID, true)
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
	assert.Equal(t, int64(1), stored.Version)
	assert.True(t, stored.UpdatedAt.Equal(rec.UpdatedAt))

	// Second delete is reported
	assert.ErrorIs(t, tbl.SoftDelete(ctx, rec.ID), ErrNotFound)

	restored, err := tbl.Restore(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, restored.Deleted)
	assert.Equal(t, int64(1), restored.Version)
	assert.True(t, restored.UpdatedAt.Equal(rec.UpdatedAt))
	assert.Equal(t, "rice", restored.Fields["commodity"])

	_, err = tbl.Restore(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotDeleted)
	_, err = tbl.Restore(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, tbl.SoftDelete(ctx, "missing"), ErrNotFound)

	live, err = tbl.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, live, 2)
}

func TestQuery_Filters(t *testing.T) {
	ctx := context.Background()
	tbl, _ := openTestTable(t)

	seed := []record.Values{
		{"commodity": "Rice", "age_group": "Adult", "mean_consumption_chronic": 10.0, "servings": 1, "organic": true, "sampled_on": "2024-01-10"},
		{"commodity": "Brown rice", "age_group": "Child", "mean_consumption_chronic": 20.0, "servings": 2, "organic": false, "sampled_on": "2024-02-10"},
		{"commodity": "Wheat", "age_group": "Adult", "mean_consumption_chronic": 30.0, "servings": 3, "sampled_on": "2024-03-10"},
		{"commodity": "50%_mix", "age_group": "Adult"},
	}
	ids := make([]string, len(seed))
	for i, v := range seed {
		rec, err := tbl.Insert(ctx, v)
		require.NoError(t, err)
		ids[i] = rec.ID
	}
	require.NoError(t, tbl.SoftDelete(ctx, ids[2]))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all live in creation order", Filter{}, []string{ids[0], ids[1], ids[3]}},
		{"contains is case-insensitive", Filter{Conditions: []Condition{{Field: "commodity", Op: OpContains, Value: "RICE"}}}, []string{ids[0], ids[1]}},
		{"starts", Filter{Conditions: []Condition{{Field: "commodity", Op: OpStartsWith, Value: "brown"}}}, []string{ids[1]}},
		{"like wildcards are literal", Filter{Conditions: []Condition{{Field: "commodity", Op: OpContains, Value: "%_"}}}, []string{ids[3]}},
		{"eq", Filter{Conditions: []Condition{{Field: "age_group", Op: OpEquals, Value: "Adult"}}}, []string{ids[0], ids[3]}},
		{"gte numeric", Filter{Conditions: []Condition{{Field: "mean_consumption_chronic", Op: OpGreaterEq, Value: "20"}}}, []string{ids[1]}},
		{"lt int", Filter{Conditions: []Condition{{Field: "servings", Op: OpLess, Value: "2"}}}, []string{ids[0]}},
		{"bool eq", Filter{Conditions: []Condition{{Field: "organic", Op: OpEquals, Value: "no"}}}, []string{ids[1]}},
		{"date range", Filter{Conditions: []Condition{{Field: "sampled_on", Op: OpGreater, Value: "2024-01-31"}}}, []string{ids[1]}},
		{"in", Filter{Conditions: []Condition{{Field: "servings", Op: OpIn, Value: "1, 3"}}}, []string{ids[0]}},
		{"combined", Filter{Conditions: []Condition{
			{Field: "age_group", Op: OpEquals, Value: "Adult"},
			{Field: "commodity", Op: OpContains, Value: "ric"},
		}}, []string{ids[0]}},
		{"include deleted", Filter{Deleted: IncludeDeleted}, ids},
		{"only deleted", Filter{Deleted: OnlyDeleted}, []string{ids[2]}},
		{"limit and offset", Filter{Limit: 1, Offset: 1}, []string{ids[1]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := tbl.Query(ctx, tt.filter)
			require.NoError(t, err)

			got := make([]string, len(recs))
			for i, r := range recs {
				got[i] = r.ID
			}
			assert.Equal(t, tt.want, got)

			if tt.filter.Limit == 0 {
				n, err := tbl.Count(ctx, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, int64(len(tt.want)), n)
			}
		})
	}
}

func TestQuery_FilterErrors(t *testing.T) {
	ctx := context.Background()
	tbl, _ := openTestTable(t)

	tests := []struct {
		name string
		cond Condition
		msg  string
	}{
		{"unknown field", Condition{Field: "colour", Op: OpEquals, Value: "red"}, "unknown field"},
		{"contains on number", Condition{Field: "servings", Op: OpContains, Value: "1"}, "only applies to str"},
		{"ordering on bool", Condition{Field: "organic", Op: OpGreater, Value: "true"}, "bool"},
		{"bad number", Condition{Field: "servings", Op: OpEquals, Value: "many"}, "not a valid int"},
		{"bad operator", Condition{Field: "servings", Op: "like", Value: "1"}, "unsupported operator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tbl.Query(ctx, Filter{Conditions: []Condition{tt.cond}})
			var ferr *FilterError
			require.ErrorAs(t, err, &ferr)
			assert.Contains(t, ferr.Error(), tt.msg)
		})
	}
}

func TestParseHelpers(t *testing.T) {
	op, ok := ParseOperator("")
	assert.True(t, ok)
	assert.Equal(t, OpEquals, op)

	op, ok = ParseOperator("CONTAINS")
	assert.True(t, ok)
	assert.Equal(t, OpContains, op)

	_, ok = ParseOperator("like")
	assert.False(t, ok)

	mode, ok := ParseDeletedMode("only")
	assert.True(t, ok)
	assert.Equal(t, OnlyDeleted, mode)
	assert.Equal(t, "only", mode.String())

	_, ok = ParseDeletedMode("maybe")
	assert.False(t, ok)
}

func TestRebind(t *testing.T) {
	pg := dialects[DriverPostgres]
	assert.Equal(t, `SELECT * FROM "t" WHERE "a" = $1 AND "b" IN ($2, $3)`,
		pg.rebind(`SELECT * FROM "t" WHERE "a" = ? AND "b" IN (?, ?)`))

	lite := dialects[DriverSQLite]
	assert.Equal(t, `WHERE "a" = ?`, lite.rebind(`WHERE "a" = ?`))
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"users", `"users"`},
		{`user"name`, `"user""name"`},
		{`users"; DROP TABLE users; --`, `"users""; DROP TABLE users; --"`},
	}
	for _, tt := range tests {
		if got := quoteIdentifier(tt.input); got != tt.want {
			t.Errorf("quoteIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
