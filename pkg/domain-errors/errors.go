// Package dErrors provides coded domain errors. Services translate store
// sentinels and guard failures into these; the HTTP layer maps codes to
// statuses and never leaks internal detail.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of a domain error. Codes are stable API surface:
// they appear verbatim in HTTP error envelopes.
type Code string

const (
	CodeValidation         Code = "validation"
	CodeNotFound           Code = "not_found"
	CodeAccessDenied       Code = "access_denied"
	CodeModuleAccessDenied Code = "module_access_denied"
	CodeInvalidState       Code = "invalid_state"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeInternal           Code = "internal_error"
)

// Error is a domain error carrying a stable code and a human message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/As chains.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for plain
// errors so infrastructure faults surface as generic 500s.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the human message from err. Internal errors return an
// empty message: their detail is for logs, not clients.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Code != CodeInternal {
		return de.Message
	}
	return ""
}

// HTTPStatus maps a code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAccessDenied, CodeModuleAccessDenied:
		return http.StatusForbidden
	case CodeInvalidState:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Guidance pairs a user-visible hint with a suggested next action for a code.
type Guidance struct {
	Hint   string `json:"guidance,omitempty"`
	Action string `json:"action,omitempty"`
}

// guidanceTable translates error kinds into actionable advice carried on
// error envelopes alongside the message.
var guidanceTable = map[Code]Guidance{
	CodeValidation:         {Hint: "Check the highlighted fields and resubmit.", Action: "fix_input"},
	CodeNotFound:           {Hint: "The referenced record does not exist; refresh and retry.", Action: "refresh"},
	CodeAccessDenied:       {Hint: "Your role or franchise does not permit this operation.", Action: "contact_admin"},
	CodeModuleAccessDenied: {Hint: "This module is not enabled for your franchise.", Action: "contact_admin"},
	CodeInvalidState:       {Hint: "The record has moved on; reload to see its current state.", Action: "reload"},
	CodeConflict:           {Hint: "An identifier collision occurred; retry the operation.", Action: "retry"},
	CodeUnauthorized:       {Hint: "Sign in again to continue.", Action: "reauthenticate"},
	CodeInternal:           {Hint: "An unexpected error occurred; try again or contact support.", Action: "retry"},
}

// GuidanceFor returns the guidance pair for a code.
func GuidanceFor(code Code) Guidance {
	return guidanceTable[code]
}
