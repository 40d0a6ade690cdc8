package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/foodform/foodform/internal/importer"
)

var (
	// ErrImportNotFound is returned for an unknown, expired or already
	// finished import ID.
	ErrImportNotFound = errors.New("import not found or expired")

	// ErrNothingToImport is returned when committing an import with no
	// valid rows.
	ErrNothingToImport = errors.New("import has no valid rows")

	// ErrFileTooLarge is returned by transports when an upload exceeds the
	// configured size.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidInput is returned by transports for a request body or
	// parameter they cannot decode.
	ErrInvalidInput = errors.New("invalid request")
)

// PendingImport is an analyzed upload waiting for commit or discard.
type PendingImport struct {
	ID        string           `json:"id"`
	Table     string           `json:"table"`
	FileName  string           `json:"file_name"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	Report    *importer.Report `json:"report"`
}

type pendingImport struct {
	PendingImport
	timer *time.Timer
}

// PreviewImport analyzes an upload against a table and keeps the report
// until it is committed, discarded, or expires. The file name selects the
// reader: .xlsx is read as a workbook, anything else as CSV text.
func (s *Service) PreviewImport(ctx context.Context, table, fileName string, r io.Reader, opts importer.Options) (*PendingImport, error) {
	t, err := s.db.Table(table)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if opts.MaxRows == 0 {
		opts.MaxRows = s.maxRows
	}

	log := opLogger(ctx, table).With("file", fileName)
	rep, err := importer.AnalyzeFile(t.Def(), fileName, r, opts)
	if err != nil {
		log.Debug("import rejected", "error", err)
		return nil, fmt.Errorf("analyze %s: %w", fileName, err)
	}

	now := s.now()
	p := &pendingImport{
		PendingImport: PendingImport{
			ID:        uuid.New().String(),
			Table:     table,
			FileName:  fileName,
			CreatedAt: now,
			ExpiresAt: now.Add(s.importTTL),
			Report:    rep,
		},
	}

	s.mu.Lock()
	s.imports[p.ID] = p
	p.timer = s.cleanup(p.ID, s.importTTL)
	s.mu.Unlock()

	log.Info("import analyzed",
		"import_id", p.ID,
		"rows", rep.Total,
		"valid", rep.Valid,
		"invalid", rep.Invalid,
	)

	out := p.PendingImport
	return &out, nil
}

// GetImport returns a pending import.
func (s *Service) GetImport(id string) (*PendingImport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.imports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	out := p.PendingImport
	return &out, nil
}

// CommitImport inserts the valid rows of a pending import. The import is
// consumed even when some rows fail to insert; their failures are in the
// result. An import with no valid rows is left pending.
func (s *Service) CommitImport(ctx context.Context, id string) (*importer.CommitResult, error) {
	s.mu.Lock()
	p, ok := s.imports[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	if p.Report.Valid == 0 {
		s.mu.Unlock()
		return nil, ErrNothingToImport
	}
	p.timer.Stop()
	delete(s.imports, id)
	s.mu.Unlock()

	t, err := s.db.Table(p.Table)
	if err != nil {
		return nil, err
	}

	log := opLogger(ctx, p.Table).With("import_id", id, "file", p.FileName)
	res, err := importer.Commit(ctx, t, p.Report)
	if err != nil {
		log.Warn("import interrupted", "inserted", len(res.Inserted), "error", err)
		return res, err
	}

	if len(res.Failed) > 0 {
		log.Error("import committed with failures",
			"inserted", len(res.Inserted),
			"failed", len(res.Failed),
			"skipped", res.Skipped,
		)
	} else {
		log.Info("import committed", "inserted", len(res.Inserted), "skipped", res.Skipped)
	}
	return res, nil
}

// DiscardImport drops a pending import without writing anything.
func (s *Service) DiscardImport(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.imports[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	p.timer.Stop()
	delete(s.imports, id)
	return nil
}

// PendingImports returns the number of imports awaiting a decision.
func (s *Service) PendingImports() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.imports)
}

// cleanup removes the import from tracking after a delay.
func (s *Service) cleanup(id string, delay time.Duration) *time.Timer {
	return time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, id)
		s.mu.Unlock()
	})
}
