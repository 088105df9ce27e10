// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/tunerpool/internal/domain/tuner/model"
	"github.com/ManuGH/tunerpool/internal/log"
)

// Problem is the error body of every failed request.
type Problem struct {
	Title     string       `json:"title"`
	Code      int          `json:"code"`
	Status    model.Status `json:"status"`
	Reason    string       `json:"reason"`
	Detail    string       `json:"detail,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, code int, reason, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:     http.StatusText(code),
		Code:      code,
		Status:    model.StatusFailed,
		Reason:    reason,
		Detail:    detail,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeError maps a dispatch error onto a problem response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldEvent, "api.request_failed").Str(log.FieldPath, r.URL.Path).Msg("request failed")
	}
	writeProblem(w, r, code, model.Reason(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyBound), errors.Is(err, model.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, model.ErrResourceExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
