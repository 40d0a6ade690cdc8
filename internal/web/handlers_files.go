package web

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/foodform/foodform/internal/core"
	"github.com/foodform/foodform/internal/export"
	"github.com/foodform/foodform/internal/importer"
)

// importResponse is returned by the import endpoint. Result is set only
// when the import was committed in the same request.
type importResponse struct {
	*core.PendingImport
	Result *importer.CommitResult `json:"result,omitempty"`
}

// handleImport analyzes an upload sent either as multipart form data or as
// the raw request body (named by ?filename=). With ?commit=true the valid
// rows are inserted right away.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	table := tableParam(r)
	if _, err := s.service.Table(table); err != nil {
		s.respondError(w, r, err)
		return
	}

	var (
		name    string
		content io.Reader
		err     error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		name, content, err = s.readUpload(w, r)
	} else {
		name, content, err = s.readBody(w, r)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	q := r.URL.Query()
	delim, err := parseDelimiter(q.Get("delimiter"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	p, err := s.service.PreviewImport(ctx, table, name, content, importer.Options{Delimiter: delim})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := importResponse{PendingImport: p}
	if commit, _ := strconv.ParseBool(q.Get("commit")); commit {
		if resp.Result, err = s.service.CommitImport(ctx, p.ID); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// readBody reads a raw upload body.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) (string, io.Reader, error) {
	name := filepath.Base(r.URL.Query().Get("filename"))
	if name == "." || name == "/" {
		name = "upload.csv"
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return name, bytes.NewReader(data), nil
}

// handleExport downloads the records matching the filter of the query
// string as CSV or Excel.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
		return
	}
	f, _, err := parseFilter(r, tbl)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.service.Export(r.Context(), tbl.Name, f, format, &buf); err != nil {
		s.respondError(w, r, err)
		return
	}

	name := export.Filename(tbl.Name, format, time.Now())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleTemplate downloads a header-only CSV for filling in offline.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_template.csv"`, tbl.Name))
	_, _ = io.WriteString(w, importer.Template(tbl))
}
