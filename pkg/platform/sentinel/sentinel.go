// Package sentinel holds the storage-level errors. Stores return them,
// possibly wrapped, and services translate them into domain errors; input
// validation uses pkg/domain-errors directly.
package sentinel

import "errors"

var (
	// ErrNotFound means the record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a unique key is taken or a version check lost.
	ErrConflict = errors.New("conflict")

	// ErrExpired marks a verification challenge past its TTL.
	ErrExpired = errors.New("expired")

	// ErrInvalidState means the record cannot take the requested change.
	ErrInvalidState = errors.New("invalid state")
)
