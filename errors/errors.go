// Package errors provides error handling for chainletter.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for user-facing messages
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrSessionExpired) {
//	    // trigger re-authentication
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is         = crdb.Is
	IsAny      = crdb.IsAny
	As         = crdb.As
	Unwrap     = crdb.Unwrap
	UnwrapOnce = crdb.UnwrapOnce
	UnwrapAll  = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Common sentinel errors for the sync engine.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = New("not found")

	// ErrEndpointsExhausted indicates every configured ledger read endpoint
	// failed after retries; callers fall back to cached state
	ErrEndpointsExhausted = New("all ledger endpoints exhausted")

	// ErrInvalidCursor indicates a backfill computed a non-positive or
	// non-decreasing cursor; the current scan is aborted, nothing is persisted
	ErrInvalidCursor = New("invalid history cursor")

	// ErrUserDeclined indicates the signer's owner rejected a decrypt prompt.
	// Never retried automatically.
	ErrUserDeclined = New("user declined signer request")

	// ErrSessionExpired indicates the signer session needs re-authentication.
	// Never retried automatically.
	ErrSessionExpired = New("signer session expired")

	// ErrStoreClosed indicates an operation was attempted on a closed
	// per-account store (usually after an account switch)
	ErrStoreClosed = New("account store is closed")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsSignerError reports whether an error is one of the signer-interaction
// failures that must be surfaced to the user rather than retried.
func IsSignerError(err error) bool {
	return err != nil && IsAny(err, ErrUserDeclined, ErrSessionExpired)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
