// Package shared holds the response helpers used by all HTTP handlers.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "sigedoc/pkg/domain-errors"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError maps a coded domain error to its HTTP status. Uncoded errors
// surface as 500 without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.GetCode(err)
	body := errorResponse{Error: string(code)}

	var de *dErrors.Error
	if errors.As(err, &de) {
		body.Description = de.Message
	}
	if code == dErrors.CodeInternal {
		body.Description = "internal error"
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}
