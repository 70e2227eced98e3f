// Package common defines shared constants and sentinel errors used across
// the storage, service and transport layers of buzzdrop. Callers should use
// errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")

	// Lifecycle errors.
	ErrExpired         = errors.New("artifact expired")
	ErrAlreadyConsumed = errors.New("artifact already consumed")

	// Validation errors. ErrTooLarge wraps ErrValidation so both match.
	ErrValidation = errors.New("validation error")
	ErrTooLarge   = fmt.Errorf("%w: payload too large", ErrValidation)

	// Storage backend errors.
	ErrStorageWrite    = errors.New("storage write error")
	ErrStorageRead     = errors.New("storage read error")
	ErrStorageNotFound = errors.New("storage object not found")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
