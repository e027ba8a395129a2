// Package httputil provides the JSON response envelope and bounded body reads.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mangaka-ai/mangaka-server/internal/errors"
)

// ErrorBody is the failure envelope: success=false plus an error string.
type ErrorBody struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a failure envelope derived from err. Unclassified errors
// are reported as upstream failures with the underlying message attached.
func WriteError(w http.ResponseWriter, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal(err.Error(), err)
	}
	WriteJSON(w, se.HTTPStatus, ErrorBody{
		Success: false,
		Error:   se.Message,
		Code:    string(se.Code),
		Details: se.Details,
	})
}

// Unauthorized writes a 401 failure envelope.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, errors.Unauthorized(message))
}

// ReadAllWithLimit reads at most limit bytes from r and reports truncation.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads the full body and fails if it exceeds limit bytes.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}

// DecodeJSON decodes a request body into target, rejecting unknown garbage
// with a validation error.
func DecodeJSON(r io.Reader, target interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r, 8<<20))
	if err := dec.Decode(target); err != nil {
		return errors.Validation("invalid JSON body: " + err.Error())
	}
	return nil
}
