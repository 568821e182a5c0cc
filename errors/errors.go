// Package errors provides error handling for the harvester.
//
// It re-exports github.com/cockroachdb/errors (stack traces, wrapping,
// details, marks) and defines the sentinel kinds the harvester reports:
//
//	ErrFetch          network or timeout reaching a source or a term
//	ErrParse          no candidate format parsed a payload
//	ErrValidation     a source failed validation under strict gating
//	ErrStoreProtocol  the triple store rejected a read or update
//	ErrConfiguration  a required endpoint or credential is missing
//
// Kinds are attached with errors.Mark so the original cause and its
// message survive:
//
//	if err := fetch(); err != nil {
//	    return errors.NewFetchError(err, "fetch %s", uri)
//	}
//
//	if errors.IsFetchError(err) { ... }
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
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
	Mark           = crdb.Mark
)

// Request-level sentinels, mapped to HTTP status codes by the server.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrServiceUnavailable indicates a required service is not available
	ErrServiceUnavailable = New("service unavailable")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")
)

// Harvester error kinds.
var (
	ErrFetch         = New("fetch error")
	ErrParse         = New("parse error")
	ErrValidation    = New("validation error")
	ErrStoreProtocol = New("store protocol error")
	ErrConfiguration = New("configuration error")
)

// NewFetchError marks err as a fetch failure and adds a formatted message.
func NewFetchError(err error, format string, args ...interface{}) error {
	return Mark(Wrapf(err, format, args...), ErrFetch)
}

// NewParseError marks err as a parse failure and adds a formatted message.
func NewParseError(err error, format string, args ...interface{}) error {
	return Mark(Wrapf(err, format, args...), ErrParse)
}

// NewValidationError creates a validation failure with a formatted message.
func NewValidationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrValidation)
}

// NewStoreProtocolError marks err as a triple store rejection.
func NewStoreProtocolError(err error, format string, args ...interface{}) error {
	return Mark(Wrapf(err, format, args...), ErrStoreProtocol)
}

// NewConfigurationError creates a configuration failure with a formatted message.
func NewConfigurationError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfiguration)
}

func IsFetchError(err error) bool         { return err != nil && Is(err, ErrFetch) }
func IsParseError(err error) bool         { return err != nil && Is(err, ErrParse) }
func IsValidationError(err error) bool    { return err != nil && Is(err, ErrValidation) }
func IsStoreProtocolError(err error) bool { return err != nil && Is(err, ErrStoreProtocol) }
func IsConfigurationError(err error) bool { return err != nil && Is(err, ErrConfiguration) }

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
