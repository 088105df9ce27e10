// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "errors"

var (
	// ErrNotFound signals an unknown channel, device or catalog id.
	ErrNotFound = errors.New("not found")
	// ErrResourceExhausted signals that no free or reusable device matched.
	ErrResourceExhausted = errors.New("no matching free or reusable device")
	// ErrAlreadyBound signals a duplicate stream session id.
	ErrAlreadyBound = errors.New("session already bound")
	// ErrConfiguration signals malformed configuration or scan-file input.
	ErrConfiguration = errors.New("configuration error")
	// ErrTuningFailure signals that the backend could not capture.
	ErrTuningFailure = errors.New("tuning failure")
	// ErrPersistenceFailure signals a storage write failure.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrInvariant signals corrupt catalog data detected on the reuse path.
	ErrInvariant = errors.New("internal consistency violation")
	// ErrBusy signals that the single scan worker is already in use.
	ErrBusy = errors.New("scan already in progress")
)

// Status is the dispatch-level outcome of an operation.
type Status string

const (
	StatusOK     Status = "OK"
	StatusFailed Status = "FAILED"
)

// Reason returns a stable machine-readable reason for err.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrResourceExhausted):
		return "resource_exhausted"
	case errors.Is(err, ErrAlreadyBound):
		return "already_bound"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrTuningFailure):
		return "tuning_failure"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	}
	return "internal"
}
