package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
)

// Table reads and writes the records of one schema table.
type Table struct {
	db  *DB
	def *schema.Table
}

// Def returns the schema definition of the table.
func (t *Table) Def() *schema.Table {
	return t.def
}

// Insert validates in and stores it as a new record with version 1.
// Invalid input returns a *record.ValidationError and writes nothing.
func (t *Table) Insert(ctx context.Context, in record.Values) (*record.Record, error) {
	vals, res := record.Normalize(t.def, in)
	if err := res.Err(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating UUID v7: %w", err)
	}

	now := t.db.now().UTC()
	rec := &record.Record{
		ID:        id.String(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    vals,
	}

	cols := t.columnNames()
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(t.def.Name), strings.Join(quoteAll(cols), ", "), strings.Join(placeholders, ", "))

	args := []any{rec.ID}
	args = append(args, t.fieldArgs(vals)...)
	args = append(args, rec.Version, formatTimestamp(rec.CreatedAt), formatTimestamp(rec.UpdatedAt), int64(0))

	if _, err := t.db.db.ExecContext(ctx, t.db.dialect.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", t.def.Name, err)
	}
	return rec, nil
}

// Update merges the declared fields of in over the current values of a live
// record, validates the result and stores it with version incremented.
// A nil or blank value clears the field. Undeclared keys are ignored.
func (t *Table) Update(ctx context.Context, id string, in record.Values) (*record.Record, error) {
	var updated *record.Record

	err := t.db.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := t.get(ctx, tx, id, false)
		if err != nil {
			return err
		}

		merged := cur.Fields.Clone()
		for k, v := range in {
			if _, ok := t.def.Field(k); ok {
				merged[k] = v
			}
		}

		vals, res := record.Normalize(t.def, merged)
		if err := res.Err(); err != nil {
			return err
		}

		now := t.db.now().UTC()
		if now.Before(cur.UpdatedAt) {
			now = cur.UpdatedAt
		}

		sets := make([]string, 0, len(t.def.Fields)+2)
		for _, f := range t.def.Fields {
			sets = append(sets, quoteIdentifier(f.Name)+" = ?")
		}
		sets = append(sets, quoteIdentifier(schema.ColumnVersion)+" = ?", quoteIdentifier(schema.ColumnUpdatedAt)+" = ?")

		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? AND %s = ? AND %s = 0",
			quoteIdentifier(t.def.Name), strings.Join(sets, ", "),
			quoteIdentifier(schema.ColumnID), quoteIdentifier(schema.ColumnVersion), quoteIdentifier(schema.ColumnDeleted))

		args := t.fieldArgs(vals)
		args = append(args, cur.Version+1, formatTimestamp(now), cur.ID, cur.Version)

		result, err := tx.ExecContext(ctx, t.db.dialect.rebind(query), args...)
		if err != nil {
			return fmt.Errorf("update %s: %w", t.def.Name, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update %s: %w", t.def.Name, err)
		}
		if n == 0 {
			return ErrConflict
		}

		updated = &record.Record{
			ID:        cur.ID,
			Version:   cur.Version + 1,
			CreatedAt: cur.CreatedAt,
			UpdatedAt: now,
			Fields:    vals,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SoftDelete marks a live record as deleted. Version and updated_at are
// unchanged. Deleting an already deleted record returns ErrNotFound.
func (t *Table) SoftDelete(ctx context.Context, id string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = 1 WHERE %s = ? AND %s = 0",
		quoteIdentifier(t.def.Name), quoteIdentifier(schema.ColumnDeleted),
		quoteIdentifier(schema.ColumnID), quoteIdentifier(schema.ColumnDeleted))

	result, err := t.db.db.ExecContext(ctx, t.db.dialect.rebind(query), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", t.def.Name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", t.def.Name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Restore clears the deleted marker. It returns ErrNotFound for an unknown
// id and ErrNotDeleted for a record that is live.
func (t *Table) Restore(ctx context.Context, id string) (*record.Record, error) {
	var restored *record.Record

	err := t.db.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := t.get(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if !cur.Deleted {
			return fmt.Errorf("%w: %s", ErrNotDeleted, id)
		}

		query := fmt.Sprintf("UPDATE %s SET %s = 0 WHERE %s = ? AND %s = 1",
			quoteIdentifier(t.def.Name), quoteIdentifier(schema.ColumnDeleted),
			quoteIdentifier(schema.ColumnID), quoteIdentifier(schema.ColumnDeleted))
		if _, err := tx.ExecContext(ctx, t.db.dialect.rebind(query), id); err != nil {
			return fmt.Errorf("restore %s: %w", t.def.Name, err)
		}

		cur.Deleted = false
		restored = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// Get returns a record by id. Deleted records are only returned when
// includeDeleted is set; the Deleted flag reports their state.
func (t *Table) Get(ctx context.Context, id string, includeDeleted bool) (*record.Record, error) {
	return t.get(ctx, t.db.db, id, includeDeleted)
}

func (t *Table) get(ctx context.Context, q querier, id string, includeDeleted bool) (*record.Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		t.selectList(), quoteIdentifier(t.def.Name), quoteIdentifier(schema.ColumnID))
	if !includeDeleted {
		query += " AND " + quoteIdentifier(schema.ColumnDeleted) + " = 0"
	}

	rec, err := t.scan(q.QueryRowContext(ctx, t.db.dialect.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", t.def.Name, id, err)
	}
	return rec, nil
}

// Query returns the records matching f ordered by creation time, then id.
func (t *Table) Query(ctx context.Context, f Filter) ([]*record.Record, error) {
	where, args, err := t.where(f)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s, %s",
		t.selectList(), quoteIdentifier(t.def.Name), where,
		quoteIdentifier(schema.ColumnCreatedAt), quoteIdentifier(schema.ColumnID))
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
		if f.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", f.Offset)
		}
	}

	rows, err := t.db.db.QueryContext(ctx, t.db.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.def.Name, err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.def.Name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", t.def.Name, err)
	}
	return out, nil
}

// Count returns the number of records matching f. Limit and Offset are
// ignored.
func (t *Table) Count(ctx context.Context, f Filter) (int64, error) {
	where, args, err := t.where(f)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdentifier(t.def.Name), where)

	var n int64
	if err := t.db.db.QueryRowContext(ctx, t.db.dialect.rebind(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.def.Name, err)
	}
	return n, nil
}

// columnNames lists the columns in storage order: id, declared fields,
// version, created_at, updated_at, deleted.
func (t *Table) columnNames() []string {
	cols := make([]string, 0, len(t.def.Fields)+5)
	cols = append(cols, schema.ColumnID)
	cols = append(cols, t.def.FieldNames()...)
	cols = append(cols, schema.ColumnVersion, schema.ColumnCreatedAt, schema.ColumnUpdatedAt, schema.ColumnDeleted)
	return cols
}

func (t *Table) selectList() string {
	return strings.Join(quoteAll(t.columnNames()), ", ")
}

func (t *Table) fieldArgs(vals record.Values) []any {
	args := make([]any, len(t.def.Fields))
	for i, f := range t.def.Fields {
		args[i] = encodeValue(f.Type, vals[f.Name])
	}
	return args
}

type scanner interface {
	Scan(dest ...any) error
}

func (t *Table) scan(s scanner) (*record.Record, error) {
	var (
		id               string
		version          int64
		created, updated string
		deleted          int64
	)
	raw := make([]any, len(t.def.Fields))

	dest := make([]any, 0, len(raw)+5)
	dest = append(dest, &id)
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	dest = append(dest, &version, &created, &updated, &deleted)

	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	createdAt, err := parseTimestamp(created)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTimestamp(updated)
	if err != nil {
		return nil, err
	}

	fields := make(record.Values, len(t.def.Fields))
	for i, f := range t.def.Fields {
		fields[f.Name] = decodeValue(f.Type, raw[i])
	}

	return &record.Record{
		ID:        id,
		Version:   version,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Deleted:   deleted != 0,
		Fields:    fields,
	}, nil
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdentifier(n)
	}
	return out
}
