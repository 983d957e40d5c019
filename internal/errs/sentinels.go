// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (field or record version mismatch).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnknownKind indicates an entity kind with no registered field set.
	ErrUnknownKind = errors.New("unknown kind")

	// ErrUnknownField indicates a proposed field outside the kind's declared field set.
	ErrUnknownField = errors.New("unknown field")

	// ErrAlreadyExists indicates a duplicate record id within a kind.
	ErrAlreadyExists = errors.New("already exists")
)
