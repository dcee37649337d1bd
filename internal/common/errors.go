// Package common defines shared constants and sentinel errors used across
// the identity service layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Credential lifecycle errors.
	ErrInvalidCredentials       = errors.New("incorrect username or password")
	ErrDuplicateUsername        = errors.New("username already exists")
	ErrPasswordTooShort         = errors.New("password should be at least 8 characters long")
	ErrUserNotFound             = errors.New("user not found")
	ErrIncorrectCurrentPassword = errors.New("incorrect current password")
	ErrHashMismatch             = errors.New("hash mismatch")
	ErrUnknownRole              = errors.New("unknown role")
	ErrUsernameRequired         = errors.New("username is required")

	// Password hashing errors.
	ErrInvalidSalt = errors.New("invalid salt")
	ErrInvalidHash = errors.New("invalid hash")

	// Token errors. All of them collapse to ErrorUnauthorized at the boundary.
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenInvalidSignature = errors.New("token signature is invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrEmptySecret           = errors.New("empty secret key")
)
