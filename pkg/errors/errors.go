package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes
const (
	CodeEmptyResponse      = "EMPTY_RESPONSE"
	CodeMalformedResponse  = "MALFORMED_RESPONSE"
	CodeInvalidFormat      = "INVALID_FORMAT"
	CodeMissingCredentials = "MISSING_CREDENTIALS"
	CodeProviderError      = "PROVIDER_ERROR"
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeCache              = "CACHE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// StudioError is the single error shape surfaced to users. Message is always
// safe to show in the UI banner; Cause carries the technical detail.
type StudioError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *StudioError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StudioError) Unwrap() error {
	return e.Cause
}

func NewStudioError(message, code string, statusCode int, context map[string]any) *StudioError {
	return &StudioError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *StudioError) WithCause(cause error) *StudioError {
	e.Cause = cause
	return e
}

// NewEmptyResponseError reports a provider reply without usable text (safety block or outage).
func NewEmptyResponseError(operation string) *StudioError {
	return &StudioError{
		Message:    fmt.Sprintf("Failed to get a valid response from the AI for %s. The response was empty, which could be due to content safety filters.", operation),
		Code:       CodeEmptyResponse,
		StatusCode: 502,
		Context:    map[string]any{"operation": operation},
	}
}

// NewMalformedResponseError reports text that is not the JSON shape the operation requires.
func NewMalformedResponseError(operation string, cause error) *StudioError {
	return &StudioError{
		Message:    fmt.Sprintf("Failed to parse the %s from the AI. The model returned malformed JSON.", operation),
		Code:       CodeMalformedResponse,
		StatusCode: 502,
		Context:    map[string]any{"operation": operation},
		Cause:      cause,
	}
}

// NewInvalidFormatError reports text missing the required "Speaker: text" shape.
func NewInvalidFormatError(operation, detail string) *StudioError {
	return &StudioError{
		Message:    fmt.Sprintf("AI returned an invalid format for the %s: %s", operation, detail),
		Code:       CodeInvalidFormat,
		StatusCode: 502,
		Context:    map[string]any{"operation": operation},
	}
}

func NewMissingCredentialsError(message string) *StudioError {
	return &StudioError{
		Message:    message,
		Code:       CodeMissingCredentials,
		StatusCode: 412,
	}
}

type ProviderError struct {
	*StudioError
	Provider string
}

// NewProviderError carries the provider's own message back to the user.
func NewProviderError(provider, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		StudioError: &StudioError{
			Message:    message,
			Code:       CodeProviderError,
			StatusCode: 502,
			Context: map[string]any{
				"provider":        provider,
				"provider_status": statusCode,
			},
			Cause: cause,
		},
		Provider: provider,
	}
}

type ValidationError struct {
	*StudioError
	Field string
	Value any
}

func NewValidationError(message, field string, value any) *ValidationError {
	return &ValidationError{
		StudioError: &StudioError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

func NewNotFoundError(kind, id string) *StudioError {
	return &StudioError{
		Message:    fmt.Sprintf("%s %q not found", kind, id),
		Code:       CodeNotFound,
		StatusCode: 404,
		Context:    map[string]any{"kind": kind, "id": id},
	}
}

// NewConflictError reports an operation rejected by an in-flight flag or a step gate.
func NewConflictError(message string) *StudioError {
	return &StudioError{
		Message:    message,
		Code:       CodeConflict,
		StatusCode: 409,
	}
}

func NewServiceUnavailableError(message string) *StudioError {
	return &StudioError{
		Message:    message,
		Code:       CodeServiceUnavailable,
		StatusCode: 503,
	}
}

type CacheError struct {
	*StudioError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		StudioError: &StudioError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

// As finds the StudioError in err's chain, including the ones embedded in typed wrappers.
func As(err error) (*StudioError, bool) {
	if err == nil {
		return nil, false
	}
	var pe *ProviderError
	if stderrors.As(err, &pe) && pe.StudioError != nil {
		return pe.StudioError, true
	}
	var ve *ValidationError
	if stderrors.As(err, &ve) && ve.StudioError != nil {
		return ve.StudioError, true
	}
	var ce *CacheError
	if stderrors.As(err, &ce) && ce.StudioError != nil {
		return ce.StudioError, true
	}
	var se *StudioError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or "" when err is not a StudioError.
func CodeOf(err error) string {
	if se, ok := As(err); ok {
		return se.Code
	}
	return ""
}

// UserMessage returns the banner text for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if se, ok := As(err); ok {
		return se.Message
	}
	return err.Error()
}

func IsEmptyResponse(err error) bool      { return CodeOf(err) == CodeEmptyResponse }
func IsMalformedResponse(err error) bool  { return CodeOf(err) == CodeMalformedResponse }
func IsInvalidFormat(err error) bool      { return CodeOf(err) == CodeInvalidFormat }
func IsMissingCredentials(err error) bool { return CodeOf(err) == CodeMissingCredentials }
func IsProviderError(err error) bool      { return CodeOf(err) == CodeProviderError }
func IsNotFound(err error) bool           { return CodeOf(err) == CodeNotFound }
