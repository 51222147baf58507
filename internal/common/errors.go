// Package common defines shared constants and sentinel errors used across
// client and server layers of notesync. Callers should use errors.Is to
// match these values.
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

	// ErrValidation marks a change the server will never accept. Retrying it
	// is pointless; the outbox entry carrying it is discarded.
	ErrValidation = errors.New("validation error")

	// ErrInvalidTimestamp is returned by clock.Normalize for values that are
	// not RFC 3339 timestamps. It wraps ErrValidation.
	ErrInvalidTimestamp = fmt.Errorf("%w: invalid timestamp", ErrValidation)

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
