// Package httputil centralizes JSON response and domain-error translation so
// handlers stay thin and error envelopes stay consistent.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "avinilabs/pkg/domain-errors"
)

// errorEnvelope is the wire shape of every error response.
type errorEnvelope struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Guidance    string `json:"guidance,omitempty"`
	Action      string `json:"action,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into an HTTP error envelope. Internal
// errors omit the description so infrastructure detail never leaks.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	g := dErrors.GuidanceFor(code)
	env := errorEnvelope{
		Error:       string(code),
		Description: dErrors.MessageOf(err),
		Guidance:    g.Hint,
		Action:      g.Action,
	}
	WriteJSON(w, dErrors.HTTPStatus(code), env)
}

// DecodeJSON decodes a request body into dst, returning a validation error on
// malformed input.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeValidation, "invalid JSON body")
	}
	return nil
}
