package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. The status code is derived from the error and the message from core.MapError
//  4. Server errors are logged with the request ID for correlation
//  5. The message is rendered as JSON for API routes, as a page otherwise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/foodform/foodform/internal/core"
	"github.com/foodform/foodform/internal/importer"
	"github.com/foodform/foodform/internal/logging"
	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/store"
	"github.com/foodform/foodform/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Action  string              `json:"action,omitempty"`
	Code    string              `json:"code"`
	Fields  []record.FieldError `json:"fields,omitempty"`
}

// statusFor maps an error to the HTTP status reported to the client.
func statusFor(err error) int {
	var (
		verr   *record.ValidationError
		ferr   *store.FilterError
		maxErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr), errors.Is(err, core.ErrNothingToImport):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrUnknownTable),
		errors.Is(err, core.ErrImportNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrNotDeleted), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &ferr),
		errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, importer.ErrEmptyInput),
		errors.Is(err, importer.ErrDuplicateHeader),
		errors.Is(err, importer.ErrUnreadable):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrFileTooLarge), errors.As(err, &maxErr),
		errors.Is(err, importer.ErrTooManyRows):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		err = fmt.Errorf("%w: %v", core.ErrFileTooLarge, err)
	}

	status := statusFor(err)
	msg := core.MapError(err)

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	if wantsJSON(r) {
		resp := errorResponse(msg)
		var verr *record.ValidationError
		if errors.As(err, &verr) {
			resp.Fields = verr.Errors
		}
		writeJSON(w, status, resp)
		return
	}
	s.renderErrorPage(w, r, status, msg)
}

// respondMessage writes a message that did not come from an error value.
func (s *Server) respondMessage(w http.ResponseWriter, r *http.Request, status int, msg core.UserMessage) {
	if wantsJSON(r) {
		writeJSON(w, status, errorResponse(msg))
		return
	}
	s.renderErrorPage(w, r, status, msg)
}

func errorResponse(msg core.UserMessage) ErrorResponse {
	return ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

func (s *Server) renderErrorPage(w http.ResponseWriter, r *http.Request, status int, msg core.UserMessage) {
	nav := s.nav(tableParam(r))
	page := templates.ErrorPage(nav, status, msg.Message, msg.Action, msg.Code)
	render(w, r, status, page)
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/healthz" {
		return true
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

// writeJSON encodes v as the response body. Encoding errors are only
// logged since the status line is already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
