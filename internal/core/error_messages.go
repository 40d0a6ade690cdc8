package core

// error_messages.go maps errors to user-facing messages with codes for
// support reference. Users quote the code; support staff look it up here.
//
// # Validation and Records (VAL, REC)
//
//	VAL001 - Invalid input: one or more fields failed validation
//	         Action: Correct the listed fields and submit again
//	         Matches: *record.ValidationError
//
//	REC001 - Record not found: the record does not exist or was deleted
//	         Action: Refresh the list; deleted records can be restored
//	         Matches: store.ErrNotFound
//
//	REC002 - Not deleted: only deleted records can be restored
//	         Action: Refresh the list
//	         Matches: store.ErrNotDeleted
//
//	REC003 - Conflict: the record changed while it was being saved
//	         Action: Reload the record and apply the change again
//	         Matches: store.ErrConflict
//
// # Tables, Filters and Schema (TBL, FLT, SCH)
//
//	TBL001 - Unknown table: the table is not declared in the schema
//	FLT001 - Invalid filter: a filter does not apply to its field
//	SCH001 - Invalid schema: the schema file could not be used
//
// # Imports and Files (IMP, FILE)
//
//	IMP001 - Import expired: the preview was committed, discarded or timed out
//	IMP002 - Nothing to import: the file has no rows, or none are valid
//	IMP003 - System busy: too many imports are being analyzed
//	IMP004 - Duplicate column: a header names the same column twice
//	IMP005 - Too many rows: the file exceeds the row limit
//	IMP006 - Unreadable file: the workbook could not be opened
//	FILE001 - File too large: the upload exceeds the size limit
//
// # Requests (REQ)
//
//	REQ001 - Request cancelled
//	REQ002 - Request timed out
//	REQ003 - Invalid request: the request body or parameters could not be read
//
// # Database (DB)
//
// Driver errors are not typed, so these are matched on the error text,
// case-insensitively, first match wins:
//
//	DB001 - Database busy: "database is locked", "busy"
//	DB002 - Connection refused: "connection refused"
//	DB003 - Connection reset: "connection reset"
//	DB004 - Duplicate value: "unique constraint", "duplicate key"
//
// # Default (ERR000)
//
// Fallback when nothing matches. Check the application logs for the
// original error.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/foodform/foodform/internal/importer"
	"github.com/foodform/foodform/internal/record"
	"github.com/foodform/foodform/internal/schema"
	"github.com/foodform/foodform/internal/store"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorRule matches an error by identity or type.
type errorRule struct {
	match func(error) bool
	msg   UserMessage
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func as[T error]() func(error) bool {
	return func(err error) bool {
		var target T
		return errors.As(err, &target)
	}
}

// errorRules are checked in order before the text patterns.
var errorRules = []errorRule{
	{
		match: as[*record.ValidationError](),
		msg: UserMessage{
			Message: "Some fields are invalid",
			Action:  "Correct the listed fields and submit again",
			Code:    "VAL001",
		},
	},
	{
		match: is(store.ErrNotFound),
		msg: UserMessage{
			Message: "Record not found",
			Action:  "Refresh the list; deleted records can be restored",
			Code:    "REC001",
		},
	},
	{
		match: is(store.ErrNotDeleted),
		msg: UserMessage{
			Message: "Only deleted records can be restored",
			Action:  "Refresh the list",
			Code:    "REC002",
		},
	},
	{
		match: is(store.ErrConflict),
		msg: UserMessage{
			Message: "The record changed while it was being saved",
			Action:  "Reload the record and apply the change again",
			Code:    "REC003",
		},
	},
	{
		match: is(store.ErrUnknownTable),
		msg: UserMessage{
			Message: "Unknown table",
			Action:  "Verify the table name is correct",
			Code:    "TBL001",
		},
	},
	{
		match: as[*store.FilterError](),
		msg: UserMessage{
			Message: "A filter does not apply to its field",
			Action:  "Use text operators on text fields and comparisons on numbers or dates",
			Code:    "FLT001",
		},
	},
	{
		match: as[*schema.Error](),
		msg: UserMessage{
			Message: "The schema file is invalid",
			Action:  "Fix the named table or field in the schema file",
			Code:    "SCH001",
		},
	},
	{
		match: is(ErrImportNotFound),
		msg: UserMessage{
			Message: "Import not found",
			Action:  "The preview may have expired. Please upload the file again",
			Code:    "IMP001",
		},
	},
	{
		match: func(err error) bool {
			return errors.Is(err, ErrNothingToImport) || errors.Is(err, importer.ErrEmptyInput)
		},
		msg: UserMessage{
			Message: "There is nothing to import",
			Action:  "Upload a file with a header row and at least one valid row",
			Code:    "IMP002",
		},
	},
	{
		match: is(ErrTooManyImports),
		msg: UserMessage{
			Message: "System is busy analyzing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP003",
		},
	},
	{
		match: is(importer.ErrDuplicateHeader),
		msg: UserMessage{
			Message: "The header names a column twice",
			Action:  "Remove the duplicate column from the file",
			Code:    "IMP004",
		},
	},
	{
		match: is(importer.ErrTooManyRows),
		msg: UserMessage{
			Message: "The file has too many rows",
			Action:  "Split the file into smaller chunks",
			Code:    "IMP005",
		},
	},
	{
		match: is(importer.ErrUnreadable),
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Upload a CSV file or an .xlsx workbook",
			Code:    "IMP006",
		},
	},
	{
		match: is(ErrFileTooLarge),
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		match: is(context.Canceled),
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		match: is(context.DeadlineExceeded),
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "REQ002",
		},
	},
	{
		match: is(ErrInvalidInput),
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  "Check the request body and parameters",
			Code:    "REQ003",
		},
	},
}

// errorPattern maps a substring of a driver error to a user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var dbBusy = UserMessage{
	Message: "The database is busy",
	Action:  "Please try again in a few moments",
	Code:    "DB001",
}

var dbDuplicate = UserMessage{
	Message: "A record with this value already exists",
	Action:  "Check for duplicate entries",
	Code:    "DB004",
}

var errorPatterns = []errorPattern{
	{pattern: "database is locked", msg: dbBusy},
	{pattern: "busy", msg: dbBusy},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{pattern: "unique constraint", msg: dbDuplicate},
	{pattern: "duplicate key", msg: dbDuplicate},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Typed and
// sentinel errors are matched first, then driver error text. Unmatched
// errors get the ERR000 fallback.
//
// Example:
//
//	_, err := svc.RestoreRecord(ctx, "food_consumption", id)
//	msg := MapError(err)
//	// msg.Code == "REC002" when the record was not deleted
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, r := range errorRules {
		if r.match(err) {
			return r.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message. Error returns
// the user message; Unwrap returns the original for logging.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
