package async

import (
	"context"

	"github.com/teranos/breg-harvester/errors"
)

// ErrorCode represents the classification of a job failure
type ErrorCode string

const (
	ErrorCodeFetch         ErrorCode = "fetch_error"
	ErrorCodeParse         ErrorCode = "parse_error"
	ErrorCodeValidation    ErrorCode = "validation_error"
	ErrorCodeStore         ErrorCode = "store_error"
	ErrorCodeConfiguration ErrorCode = "configuration_error"
	ErrorCodeTimeout       ErrorCode = "timeout"
	ErrorCodeCancelled     ErrorCode = "cancelled"
	ErrorCodeUnknown       ErrorCode = "unknown"
)

// ErrorContext provides structured error information for job failures
type ErrorContext struct {
	Stage     string    // Where the error occurred
	Code      ErrorCode // Error classification
	Message   string    // Human-readable message
	Transient bool      // Re-running the job later may succeed
}

// ClassifyError categorizes an error by its marked kind.
func ClassifyError(stage string, err error) ErrorContext {
	if err == nil {
		return ErrorContext{Stage: stage, Code: ErrorCodeUnknown, Message: "unknown error"}
	}

	ctx := ErrorContext{Stage: stage, Message: err.Error()}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errors.ErrTimeout):
		ctx.Code = ErrorCodeTimeout
		ctx.Transient = true
	case errors.Is(err, context.Canceled):
		ctx.Code = ErrorCodeCancelled
		ctx.Transient = true
	case errors.IsFetchError(err):
		ctx.Code = ErrorCodeFetch
		ctx.Transient = true
	case errors.IsStoreProtocolError(err):
		ctx.Code = ErrorCodeStore
		ctx.Transient = true
	case errors.IsParseError(err):
		ctx.Code = ErrorCodeParse
	case errors.IsValidationError(err):
		ctx.Code = ErrorCodeValidation
	case errors.IsConfigurationError(err):
		ctx.Code = ErrorCodeConfiguration
	default:
		ctx.Code = ErrorCodeUnknown
	}

	return ctx
}
