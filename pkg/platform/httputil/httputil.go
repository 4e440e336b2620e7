// Package httputil holds the JSON response and decode helpers shared by all
// HTTP handlers.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"aegis/pkg/derrors"
)

// maxBodyBytes caps request bodies before decode.
const maxBodyBytes = 1 << 20

// errorResponse is the wire shape for every error the API returns.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error to its HTTP status and writes the error
// body. Internal errors omit the description so implementation detail never
// leaks to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := derrors.CodeOf(err)
	status := statusFor(code)

	resp := errorResponse{Error: string(code)}
	if status < http.StatusInternalServerError {
		resp.Description = derrors.MessageOf(err)
	}
	WriteJSON(w, status, resp)
}

func statusFor(code derrors.Code) int {
	switch code {
	case derrors.CodeInvalidInput:
		return http.StatusBadRequest
	case derrors.CodeInvalidTemplate, derrors.CodeIncomplete:
		return http.StatusUnprocessableEntity
	case derrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case derrors.CodeForbidden:
		return http.StatusForbidden
	case derrors.CodeNotFound:
		return http.StatusNotFound
	case derrors.CodeConflict, derrors.CodeInvalidState:
		return http.StatusConflict
	case derrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads and validates a JSON request body into T. On failure it writes
// the error response itself and returns false.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context) (T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "request decode failed", slog.String("error", err.Error()))
		}
		WriteError(w, derrors.New(derrors.CodeInvalidInput, "malformed request body"))
		return req, false
	}
	return req, true
}
