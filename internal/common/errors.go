// Package common defines shared sentinel errors used across the settlement
// pipeline. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Envelope / request shape errors.
	ErrValidation = errors.New("validation error")

	// Token errors (invalid signature, missing fields, stale challenge).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Store precondition errors.
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")

	// Paired-store creation failed after the first write; the partial
	// write has been rolled back.
	ErrStoreInconsistency = errors.New("store inconsistency")
)
