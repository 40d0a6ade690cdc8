package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/foodform/foodform/internal/export"
	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
	"github.com/foodform/foodform/internal/store"
)

// DefaultImportTTL is how long an analyzed import waits for a commit.
const DefaultImportTTL = 30 * time.Minute

// Options configures a Service.
type Options struct {
	// DefaultTable is the table shown first. Empty selects the first
	// table of the schema.
	DefaultTable string

	// ImportTTL bounds how long a preview is kept. Zero means DefaultImportTTL.
	ImportTTL time.Duration

	// MaxImportRows caps the data rows of one import. Zero means no limit.
	MaxImportRows int

	// MaxConcurrentImports and ImportWait configure the ImportLimiter.
	MaxConcurrentImports int
	ImportWait           time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service provides the business logic for record entry, import and export.
type Service struct {
	db           *store.DB
	defaultTable string
	importTTL    time.Duration
	maxRows      int
	limiter      *ImportLimiter
	now          func() time.Time

	mu      sync.RWMutex
	imports map[string]*pendingImport
}

// NewService creates a Service over an open database.
func NewService(db *store.DB, opts Options) (*Service, error) {
	if db == nil {
		return nil, errors.New("core: database is required")
	}

	def := opts.DefaultTable
	if def == "" {
		def = db.Schema().TableNames()[0]
	} else if _, ok := db.Schema().Table(def); !ok {
		return nil, fmt.Errorf("default table: %w: %s", store.ErrUnknownTable, def)
	}

	ttl := opts.ImportTTL
	if ttl <= 0 {
		ttl = DefaultImportTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		db:           db,
		defaultTable: def,
		importTTL:    ttl,
		maxRows:      opts.MaxImportRows,
		limiter:      NewImportLimiter(opts.MaxConcurrentImports, opts.ImportWait),
		now:          now,
		imports:      make(map[string]*pendingImport),
	}, nil
}

// Close drops every pending import. The database is owned by the caller.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.imports {
		p.timer.Stop()
		delete(s.imports, id)
	}
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Tables returns the table definitions in schema order.
func (s *Service) Tables() []*schema.Table {
	return s.db.Schema().Tables
}

// Table returns the definition of a table.
func (s *Service) Table(name string) (*schema.Table, error) {
	t, err := s.db.Table(name)
	if err != nil {
		return nil, err
	}
	return t.Def(), nil
}

// DefaultTable returns the name of the table shown first.
func (s *Service) DefaultTable() string {
	return s.defaultTable
}

// CreateRecord validates the values and stores them as a new record.
func (s *Service) CreateRecord(ctx context.Context, table string, in record.Values) (*record.Record, error) {
	t, err := s.db.Table(table)
	if err != nil {
		return nil, err
	}

	log := opLogger(ctx, table)
	rec, err := t.Insert(ctx, in)
	if err != nil {
		logFailure(log, "create record", err)
		return nil, err
	}

	log.Info("record created", "id", rec.ID, "version", rec.Version)
	return rec, nil
}

// UpdateRecord merges the values into a live record and stores the result
// as the next version.
func (s *Service) UpdateRecord(ctx context.Context, table, id string, in record.Values) (*record.Record, error) {
	t, err := s.db.Table(table)
	if err != nil {
		return nil, err
	}

	log := opLogger(ctx, table).With("id", id)
	rec, err := t.Update(ctx, id, in)
	if err != nil {
		logFailure(log, "update record", err)
		return nil, err
	}

	log.Info("record updated", "version", rec.Version)
	return rec, nil
}

// DeleteRecord soft-deletes a live record.
func (s *Service) DeleteRecord(ctx context.Context, table, id string) error {
	t, err := s.db.Table(table)
	if err != nil {
		return err
	}

	log := opLogger(ctx, table).With("id", id)
	if err := t.SoftDelete(ctx, id); err != nil {
		logFailure(log, "delete record", err)
		return err
	}

	log.Info("record deleted")
	return nil
}

// RestoreRecord clears the deleted marker of a record.
func (s *Service) RestoreRecord(ctx context.Context, table, id string) (*record.Record, error) {
	t, err := s.db.Table(table)
	if err != nil {
		return nil, err
	}

	log := opLogger(ctx, table).With("id", id)
	rec, err := t.Restore(ctx, id)
	if err != nil {
		logFailure(log, "restore record", err)
		return nil, err
	}

	log.Info("record restored", "version", rec.Version)
	return rec, nil
}

// GetRecord loads one record. Deleted records are found only when
// includeDeleted is set.
func (s *Service) GetRecord(ctx context.Context, table, id string, includeDeleted bool) (*record.Record, error) {
	t, err := s.db.Table(table)
	if err != nil {
		return nil, err
	}
	return t.Get(ctx, id, includeDeleted)
}

// RecordPage is one page of a filtered listing.
type RecordPage struct {
	Records []*record.Record `json:"records"`
	Total   int64            `json:"total"` // matches ignoring Limit and Offset
}

// ListRecords returns the records matching f, oldest first.
func (s *Service) ListRecords(ctx context.Context, table string, f store.Filter) (*RecordPage, error) {
	t, err := s.db.Table(table)
	if err != nil {
		return nil, err
	}

	recs, err := t.Query(ctx, f)
	if err != nil {
		return nil, err
	}

	total := int64(len(recs))
	if f.Limit > 0 || f.Offset > 0 {
		if total, err = t.Count(ctx, f); err != nil {
			return nil, err
		}
	}

	return &RecordPage{Records: recs, Total: total}, nil
}

// Export writes every record matching f in the given format. Limit and
// Offset of f are ignored. When f admits deleted records the export gets a
// deleted column.
func (s *Service) Export(ctx context.Context, table string, f store.Filter, format export.Format, w io.Writer) error {
	t, err := s.db.Table(table)
	if err != nil {
		return err
	}

	f.Limit, f.Offset = 0, 0
	recs, err := t.Query(ctx, f)
	if err != nil {
		return err
	}

	opts := export.Options{Deleted: f.Deleted != store.ExcludeDeleted}
	if err := export.Write(w, format, t.Def(), recs, opts); err != nil {
		return fmt.Errorf("export %s: %w", table, err)
	}

	opLogger(ctx, table).Info("records exported", "format", string(format), "count", len(recs))
	return nil
}

// logFailure logs rejected input at debug and everything else at error.
func logFailure(log *slog.Logger, op string, err error) {
	var verr *record.ValidationError
	switch {
	case errors.As(err, &verr):
		log.Debug(op+" rejected", "errors", verr.Errors)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNotDeleted), errors.Is(err, store.ErrConflict):
		log.Debug(op+" rejected", "error", err)
	default:
		log.Error(op+" failed", "error", err)
	}
}
