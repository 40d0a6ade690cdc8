package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
)

// fieldInfo describes one declared field to API clients.
type fieldInfo struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Description string   `json:"description,omitempty"`
}

type tableInfo struct {
	Name   string      `json:"name"`
	Fields []fieldInfo `json:"fields"`
}

func newTableInfo(t *schema.Table) tableInfo {
	info := tableInfo{Name: t.Name, Fields: make([]fieldInfo, len(t.Fields))}
	for i, f := range t.Fields {
		info.Fields[i] = fieldInfo{
			Name:        f.Name,
			Type:        f.Type.String(),
			Required:    f.Required,
			Min:         f.Min,
			Max:         f.Max,
			Description: f.Description,
		}
	}
	return info
}

type recordList struct {
	Records []map[string]any `json:"records"`
	Total   int64            `json:"total"`
}

func recordMaps(t *schema.Table, recs []*record.Record) []map[string]any {
	out := make([]map[string]any, len(recs))
	for i, rec := range recs {
		out[i] = rec.Map(t)
	}
	return out
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables := s.service.Tables()
	out := make([]tableInfo, len(tables))
	for i, t := range tables {
		out[i] = newTableInfo(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables":  out,
		"default": s.service.DefaultTable(),
	})
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTableInfo(tbl))
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	f, _, err := parseFilter(r, tbl)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	page, err := s.service.ListRecords(r.Context(), tbl.Name, f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordList{Records: recordMaps(tbl, page.Records), Total: page.Total})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	includeDeleted, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted"))
	rec, err := s.service.GetRecord(r.Context(), tbl.Name, chi.URLParam(r, "id"), includeDeleted)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Map(tbl))
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	in, err := decodeJSONValues(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.service.CreateRecord(WithRequestMetadata(r.Context(), r), tbl.Name, in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/tables/"+tbl.Name+"/records/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec.Map(tbl))
}

// handleUpdateRecord merges the posted fields into the record. Fields left
// out keep their value; an explicit null clears an optional field.
func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	in, err := decodeJSONValues(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.service.UpdateRecord(WithRequestMetadata(r.Context(), r), tbl.Name, chi.URLParam(r, "id"), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Map(tbl))
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.DeleteRecord(ctx, tableParam(r), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestoreRecord(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.service.Table(tableParam(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.service.RestoreRecord(WithRequestMetadata(r.Context(), r), tbl.Name, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Map(tbl))
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetImport(chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCommitImport(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.CommitImport(WithRequestMetadata(r.Context(), r), chi.URLParam(r, "importID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDiscardImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DiscardImport(chi.URLParam(r, "importID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
