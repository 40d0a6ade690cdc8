// Package store persists schema-driven records in a SQL database.
//
// Every schema table becomes one SQL table holding the declared columns plus
// the system columns id, version, created_at, updated_at and deleted. The
// default backend is an embedded SQLite file (modernc.org/sqlite, no cgo);
// a PostgreSQL URL can be used instead through the pgx stdlib driver.
//
// Records are never physically removed: SoftDelete sets the deleted marker
// and Restore clears it. Queries exclude deleted records unless asked.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/foodform/foodform/internal/schema"
)

// Driver names accepted in Options.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Options configures Open.
type Options struct {
	Driver string // DriverSQLite (default) or DriverPostgres
	DSN    string // file path for SQLite, connection URL for PostgreSQL

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DB is an open record database bound to a schema.
type DB struct {
	db      *sql.DB
	dialect dialect
	schema  *schema.Schema
	tables  map[string]*Table
	now     func() time.Time
}

// Open connects to the database, applies connection settings, and makes
// sure a table exists for every schema table with a column for every
// declared field. Columns for newly declared fields are added in place;
// columns no longer declared are left untouched.
func Open(ctx context.Context, opts Options, sch *schema.Schema) (*DB, error) {
	if sch == nil {
		return nil, errors.New("store: schema is required")
	}

	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errors.New("store: database path or URL is required")
	}

	if driver == DriverSQLite {
		if err := ensureParentDir(opts.DSN); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &DB{
		db:      db,
		dialect: d,
		schema:  sch,
		tables:  make(map[string]*Table, len(sch.Tables)),
		now:     now,
	}

	for _, def := range sch.Tables {
		if err := s.migrate(ctx, def); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare table %s: %w", def.Name, err)
		}
		s.tables[def.Name] = &Table{db: s, def: def}
	}

	return s, nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the connection is alive.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Schema returns the schema the database was opened with.
func (s *DB) Schema() *schema.Schema {
	return s.schema
}

// Table returns the accessor for a schema table.
func (s *DB) Table(name string) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

func ensureParentDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// migrate creates the table if needed and adds missing declared columns.
func (s *DB) migrate(ctx context.Context, def *schema.Table) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createTable(def)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	existing, err := s.columns(ctx, def.Name)
	if err != nil {
		return err
	}

	for _, f := range def.Fields {
		if existing[strings.ToLower(f.Name)] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			quoteIdentifier(def.Name), quoteIdentifier(f.Name), s.dialect.columnType(f.Type))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s: %w", f.Name, err)
		}
	}

	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
		quoteIdentifier("idx_"+def.Name+"_created"), quoteIdentifier(def.Name),
		quoteIdentifier(schema.ColumnCreatedAt), quoteIdentifier(schema.ColumnID))
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// columns lists the lowercased column names currently present in a table.
func (s *DB) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", quoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("inspect columns: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("inspect columns: %w", err)
	}
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[strings.ToLower(c)] = true
	}
	return set, rows.Err()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, rolling back on any error.
func (s *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
