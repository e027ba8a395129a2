package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PostgREST error codes the service cares about.
const (
	// CodeNoRows is returned when Single() matches no row.
	CodeNoRows = "PGRST116"
	// CodeUniqueViolation is the Postgres unique constraint violation.
	CodeUniqueViolation = "23505"
)

// Error is a structured Supabase API error.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
	StatusCode int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("supabase: %s (status %d)", e.Message, e.StatusCode)
}

// IsNoRows reports whether err is the PostgREST "no rows" error.
func IsNoRows(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == CodeNoRows
}

// IsConflict reports whether err is a unique constraint violation.
func IsConflict(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == CodeUniqueViolation || se.StatusCode == 409
}

// parseError parses an error response body into an *Error.
func parseError(body []byte, statusCode int) error {
	var errResp struct {
		Code             string `json:"code"`
		Message          string `json:"message"`
		Details          string `json:"details"`
		Hint             string `json:"hint"`
		ErrorField       string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return &Error{Message: string(body), StatusCode: statusCode}
	}

	msg := errResp.Message
	if msg == "" {
		msg = errResp.ErrorField
	}
	if msg == "" {
		msg = errResp.ErrorDescription
	}

	return &Error{
		Code:       errResp.Code,
		Message:    msg,
		Details:    errResp.Details,
		Hint:       errResp.Hint,
		StatusCode: statusCode,
	}
}
