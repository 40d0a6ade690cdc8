package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/foodform/foodform/internal/core"
	"github.com/foodform/foodform/internal/importer"
	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
	"github.com/foodform/foodform/internal/store"
	"github.com/foodform/foodform/internal/web/templates"
)

// deletedListLimit is how many deleted records the table page offers for
// restore. Deleting leaves the timestamps alone, so the list is ordered by
// creation, newest first.
const deletedListLimit = 10

// render writes a component with the given status. The page is rendered
// to a buffer first so a template error still produces a clean 500.
func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	var buf bytes.Buffer
	if err := c.Render(r.Context(), &buf); err != nil {
		slog.Error("render failed", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) nav(current string) templates.Nav {
	tables := s.service.Tables()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return templates.Nav{Tables: names, Current: current}
}

func operatorNames() []string {
	names := make([]string, len(store.Operators))
	for i, op := range store.Operators {
		names[i] = string(op)
	}
	return names
}

// redirect sends the browser back to a page after a successful POST.
func redirect(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func noticeQuery(code string) url.Values {
	return url.Values{"notice": {code}}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	redirect(w, r, templates.TablePath(s.service.DefaultTable()), nil)
}

// handleTablePage renders the entry form and record list of a table.
func (s *Server) handleTablePage(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.renderTablePage(w, r, http.StatusOK, tbl, templates.FormState{}, nil)
}

// renderTablePage builds the table page around form, which holds the
// rejected input when a create failed.
func (s *Server) renderTablePage(w http.ResponseWriter, r *http.Request, status int, tbl *schema.Table, form templates.FormState, alert templ.Component) {
	ctx := r.Context()
	data := templates.TablePageData{
		Nav:       s.nav(tbl.Name),
		Table:     tbl,
		Operators: operatorNames(),
		Form:      form,
		Notice:    noticeText(r.URL.Query()),
		Error:     alert,
	}

	f, st, err := parseFilter(r, tbl)
	data.Filter = st
	if err != nil {
		msg := core.MapError(err)
		data.Error = templates.ErrorAlert(msg.Message, msg.Action, msg.Code)
		f = store.Filter{}
		if status == http.StatusOK {
			status = http.StatusBadRequest
		}
	}

	page, err := s.service.ListRecords(ctx, tbl.Name, f)
	var ferr *store.FilterError
	if errors.As(err, &ferr) {
		msg := core.MapError(err)
		data.Error = templates.ErrorAlert(msg.Message, msg.Action, msg.Code)
		status = http.StatusBadRequest
		page, err = s.service.ListRecords(ctx, tbl.Name, store.Filter{})
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	data.Records = page.Records
	data.Total = page.Total

	deleted, err := s.service.ListRecords(ctx, tbl.Name, store.Filter{Deleted: store.OnlyDeleted})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	data.DeletedRecords = newestFirst(deleted.Records, deletedListLimit)

	render(w, r, status, templates.TablePage(data))
}

// newestFirst returns up to n of the most recently created records, newest
// first. recs must be in query order (created_at, id).
func newestFirst(recs []*record.Record, n int) []*record.Record {
	if len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	out := make([]*record.Record, len(recs))
	for i, rec := range recs {
		out[len(recs)-1-i] = rec
	}
	return out
}

func noticeText(q url.Values) string {
	code := q.Get("notice")
	text := notices[code]
	if code == "imported" {
		text = fmt.Sprintf("Import committed: %s inserted", q.Get("inserted"))
		if failed := q.Get("failed"); failed != "" && failed != "0" {
			text += ", " + failed + " failed"
		}
		text += "."
	}
	return text
}

// formState turns a rejected submission back into form state.
func formState(raw map[string]string, err error) (templates.FormState, bool) {
	var verr *record.ValidationError
	if !errors.As(err, &verr) {
		return templates.FormState{}, false
	}
	return templates.FormState{Values: raw, Errors: verr.ByField()}, true
}

func validationAlert(err error) templ.Component {
	msg := core.MapError(err)
	return templates.ErrorAlert(msg.Message, msg.Action, msg.Code)
}

func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	in, raw, err := parseFormValues(r, tbl)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	if _, err := s.service.CreateRecord(ctx, tbl.Name, in); err != nil {
		if form, ok := formState(raw, err); ok {
			s.renderTablePage(w, r, http.StatusUnprocessableEntity, tbl, form, validationAlert(err))
			return
		}
		s.respondError(w, r, err)
		return
	}
	redirect(w, r, templates.TablePath(tbl.Name), noticeQuery("created"))
}

func (s *Server) handleEditPage(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.service.GetRecord(r.Context(), tbl.Name, chi.URLParam(r, "id"), false)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render(w, r, http.StatusOK, templates.EditPage(templates.EditPageData{
		Nav:    s.nav(tbl.Name),
		Table:  tbl,
		Record: rec,
		Form:   templates.FormStateOf(tbl, rec),
	}))
}

func (s *Server) handleUpdateForm(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	in, raw, err := parseFormValues(r, tbl)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	if _, err := s.service.UpdateRecord(ctx, tbl.Name, id, in); err != nil {
		form, ok := formState(raw, err)
		if !ok {
			s.respondError(w, r, err)
			return
		}
		rec, getErr := s.service.GetRecord(ctx, tbl.Name, id, false)
		if getErr != nil {
			s.respondError(w, r, getErr)
			return
		}
		render(w, r, http.StatusUnprocessableEntity, templates.EditPage(templates.EditPageData{
			Nav:    s.nav(tbl.Name),
			Table:  tbl,
			Record: rec,
			Form:   form,
			Error:  validationAlert(err),
		}))
		return
	}
	redirect(w, r, templates.TablePath(tbl.Name), noticeQuery("updated"))
}

func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	table := tableParam(r)
	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.DeleteRecord(ctx, table, chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	redirect(w, r, templates.TablePath(table), noticeQuery("deleted"))
}

func (s *Server) handleRestoreForm(w http.ResponseWriter, r *http.Request) {
	table := tableParam(r)
	ctx := WithRequestMetadata(r.Context(), r)
	if _, err := s.service.RestoreRecord(ctx, table, chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	redirect(w, r, templates.TablePath(table), noticeQuery("restored"))
}

// handleImportPreviewForm analyzes an uploaded file or pasted text and
// redirects to the preview page.
func (s *Server) handleImportPreviewForm(w http.ResponseWriter, r *http.Request) {
	table := tableParam(r)
	if _, err := s.service.Table(table); err != nil {
		s.respondError(w, r, err)
		return
	}

	name, content, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	delim, err := parseDelimiter(r.FormValue("delimiter"))
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
	redirect(w, r, templates.ImportPath(p.ID), nil)
}

// readUpload returns the "file" part of a multipart form, or the "paste"
// text when no file was chosen.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, io.Reader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(s.cfg.Upload.MaxFileSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", nil, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, s.cfg.Upload.MaxFileSize)
		}
		return "", nil, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}

	file, header, err := r.FormFile("file")
	if err == nil && header.Size > 0 {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, fmt.Errorf("read upload: %w", err)
		}
		return header.Filename, bytes.NewReader(data), nil
	}
	if file != nil {
		file.Close()
	}

	paste := r.FormValue("paste")
	if strings.TrimSpace(paste) == "" {
		return "", nil, fmt.Errorf("%w: choose a file or paste CSV text", core.ErrInvalidInput)
	}
	return "pasted.csv", strings.NewReader(paste), nil
}

func (s *Server) handleImportPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetImport(chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	render(w, r, http.StatusOK, templates.ImportPreview(templates.ImportPreviewData{
		Nav:       s.nav(p.Table),
		ID:        p.ID,
		FileName:  p.FileName,
		ExpiresAt: p.ExpiresAt,
		Report:    p.Report,
	}))
}

func (s *Server) handleImportCommitForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")
	p, err := s.service.GetImport(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.CommitImport(ctx, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	q := noticeQuery("imported")
	q.Set("inserted", fmt.Sprint(len(res.Inserted)))
	q.Set("failed", fmt.Sprint(len(res.Failed)))
	redirect(w, r, templates.TablePath(p.Table), q)
}

func (s *Server) handleImportDiscardForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")
	p, err := s.service.GetImport(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.service.DiscardImport(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	redirect(w, r, templates.TablePath(p.Table), noticeQuery("discarded"))
}
