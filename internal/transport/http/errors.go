// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package http

import (
	"encoding/json"
	"net/http"

	"github.com/segflow/trackd/internal/log"
)

// APIError is a structured, machine-readable error response.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (e *APIError) Error() string { return e.Message }

var (
	ErrInvalidInput = &APIError{Code: "INVALID_INPUT", Message: "invalid input parameters"}
	ErrNotFound     = &APIError{Code: "SESSION_NOT_FOUND", Message: "session not found"}
	ErrExpired      = &APIError{Code: "SESSION_EXPIRED", Message: "session is not currently active"}
	ErrBackend      = &APIError{Code: "BACKEND_FAILURE", Message: "model backend failure"}
	ErrRateLimited  = &APIError{Code: "RATE_LIMIT_EXCEEDED", Message: "too many session submissions"}
	ErrInternal     = &APIError{Code: "INTERNAL_SERVER_ERROR", Message: "an internal error occurred"}
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError sends a structured error response, attaching the request id
// from context so clients can correlate with server logs.
func respondError(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *APIError) {
	resp := &APIError{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		RequestID: log.RequestIDFromContext(r.Context()),
	}
	writeJSON(w, statusCode, resp)
}
