package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/foodform/foodform/internal/importer"
	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
	"github.com/foodform/foodform/internal/store"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name: "validation error",
			err: &record.ValidationError{Errors: []record.FieldError{
				{Field: "commodity", Reason: record.ReasonMissing},
			}},
			wantCode: "VAL001",
		},
		{
			name:     "wrapped not found",
			err:      fmt.Errorf("update abc: %w", store.ErrNotFound),
			wantCode: "REC001",
		},
		{
			name:     "not deleted",
			err:      store.ErrNotDeleted,
			wantCode: "REC002",
		},
		{
			name:     "conflict",
			err:      store.ErrConflict,
			wantCode: "REC003",
		},
		{
			name:     "unknown table",
			err:      fmt.Errorf("%w: nope", store.ErrUnknownTable),
			wantCode: "TBL001",
		},
		{
			name:     "filter error",
			err:      &store.FilterError{Field: "organic", Op: store.OpGreater, Msg: "ordering does not apply to bool fields"},
			wantCode: "FLT001",
		},
		{
			name:     "schema error",
			err:      fmt.Errorf("load x.yaml: %w", &schema.Error{Table: "t", Msg: "empty"}),
			wantCode: "SCH001",
		},
		{
			name:     "import expired",
			err:      fmt.Errorf("%w: 123", ErrImportNotFound),
			wantCode: "IMP001",
		},
		{
			name:     "empty upload",
			err:      fmt.Errorf("analyze a.csv: %w", importer.ErrEmptyInput),
			wantCode: "IMP002",
		},
		{
			name:     "nothing valid",
			err:      ErrNothingToImport,
			wantCode: "IMP002",
		},
		{
			name:     "busy",
			err:      ErrTooManyImports,
			wantCode: "IMP003",
		},
		{
			name:     "duplicate header",
			err:      importer.ErrDuplicateHeader,
			wantCode: "IMP004",
		},
		{
			name:     "unreadable workbook",
			err:      fmt.Errorf("analyze a.xlsx: %w", importer.ErrUnreadable),
			wantCode: "IMP006",
		},
		{
			name:     "bad request body",
			err:      fmt.Errorf("%w: unexpected EOF", ErrInvalidInput),
			wantCode: "REQ003",
		},
		{
			name:     "file too large",
			err:      ErrFileTooLarge,
			wantCode: "FILE001",
		},
		{
			name:     "cancelled",
			err:      context.Canceled,
			wantCode: "REQ001",
		},
		{
			name:     "deadline",
			err:      fmt.Errorf("query: %w", context.DeadlineExceeded),
			wantCode: "REQ002",
		},
		{
			name:     "sqlite busy by text",
			err:      errors.New("database is locked (5) (SQLITE_BUSY)"),
			wantCode: "DB001",
		},
		{
			name:     "case insensitive text match",
			err:      errors.New("dial tcp: CONNECTION REFUSED"),
			wantCode: "DB002",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(store.ErrNotDeleted)

	expected := "Only deleted records can be restored (Code: REC002). Refresh the list"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", store.ErrNotFound, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("restore abc: %w", store.ErrNotFound)
		userErr := NewUserError(techErr)

		if userErr.Error() != "Record not found" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, store.ErrNotFound) {
			t.Error("Unwrap() should return original error")
		}
	})
}
