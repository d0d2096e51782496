package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrCorruptPayload   = errors.New("corrupt payload")
	ErrInsufficientData = errors.New("insufficient data")
)

// MCPError represents a standardized error response
type MCPError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Fields    []string  `json:"fields,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *MCPError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeCorruptPayload = "CORRUPT_PAYLOAD"
	ErrCodeDatabase       = "DATABASE_ERROR"
	ErrCodeExternalSource = "EXTERNAL_SOURCE_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
)

// NewMCPError creates a new MCPError with timestamp
func NewMCPError(code, message, details, requestID string) *MCPError {
	return &MCPError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ErrorCode maps an error onto the error code reported to API clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrValidation):
		return ErrCodeValidation
	case errors.Is(err, ErrCorruptPayload):
		return ErrCodeCorruptPayload
	default:
		return ErrCodeInternalServer
	}
}

// ValidationError represents input validation errors on request fields
// that are not calculator parameters.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ParameterError is implemented by every calculator input violation.
type ParameterError interface {
	error
	Parameter() string
}

// MissingParameterError reports a required parameter that was not supplied.
type MissingParameterError struct {
	Name string `json:"name"`
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing parameter %q", e.Name)
}

// Parameter returns the offending parameter name.
func (e *MissingParameterError) Parameter() string { return e.Name }

// Is matches ErrValidation.
func (e *MissingParameterError) Is(target error) bool { return target == ErrValidation }

// InvalidParameterTypeError reports a value whose variant does not match
// the declared kind.
type InvalidParameterTypeError struct {
	Name     string        `json:"name"`
	Expected ParameterKind `json:"expected"`
	Got      ValueKind     `json:"-"`
}

func (e *InvalidParameterTypeError) Error() string {
	return fmt.Sprintf("parameter %q: expected %s, got %s", e.Name, e.Expected, e.Got)
}

// Parameter returns the offending parameter name.
func (e *InvalidParameterTypeError) Parameter() string { return e.Name }

// Is matches ErrValidation.
func (e *InvalidParameterTypeError) Is(target error) bool { return target == ErrValidation }

// InvalidChoiceError reports a single-choice value outside the allowed set.
type InvalidChoiceError struct {
	Name    string   `json:"name"`
	Value   string   `json:"value"`
	Choices []string `json:"choices"`
}

func (e *InvalidChoiceError) Error() string {
	return fmt.Sprintf("parameter %q: %q is not one of [%s]", e.Name, e.Value, strings.Join(e.Choices, ", "))
}

// Parameter returns the offending parameter name.
func (e *InvalidChoiceError) Parameter() string { return e.Name }

// Is matches ErrValidation.
func (e *InvalidChoiceError) Is(target error) bool { return target == ErrValidation }

// OutOfRangeError reports a number outside the physiologically valid range
// declared for a parameter, or rejected by a calculator's formula.
type OutOfRangeError struct {
	Name  string   `json:"name"`
	Value float64  `json:"value"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

func (e *OutOfRangeError) Error() string {
	lo, hi := "-inf", "+inf"
	if e.Min != nil {
		lo = fmt.Sprintf("%g", *e.Min)
	}
	if e.Max != nil {
		hi = fmt.Sprintf("%g", *e.Max)
	}
	return fmt.Sprintf("parameter %q: %g is outside [%s, %s]", e.Name, e.Value, lo, hi)
}

// Parameter returns the offending parameter name.
func (e *OutOfRangeError) Parameter() string { return e.Name }

// Is matches ErrValidation.
func (e *OutOfRangeError) Is(target error) bool { return target == ErrValidation }

// ParameterErrors collects every violation found for one evaluation, in
// parameter order.
type ParameterErrors []ParameterError

func (e ParameterErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, pe := range e {
		msgs[i] = pe.Error()
	}
	return fmt.Sprintf("%d invalid parameters: %s", len(e), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual violations to errors.Is and errors.As.
func (e ParameterErrors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, pe := range e {
		errs[i] = pe
	}
	return errs
}

// Parameters returns the offending parameter names.
func (e ParameterErrors) Parameters() []string {
	names := make([]string, len(e))
	for i, pe := range e {
		names[i] = pe.Parameter()
	}
	return names
}

// CorruptPayloadError reports a stored parameter payload that could not be
// decoded.
type CorruptPayloadError struct {
	Cause error
}

func (e *CorruptPayloadError) Error() string {
	return fmt.Sprintf("corrupt parameter payload: %v", e.Cause)
}

// Unwrap returns the decode failure.
func (e *CorruptPayloadError) Unwrap() error { return e.Cause }

// Is matches ErrCorruptPayload.
func (e *CorruptPayloadError) Is(target error) bool { return target == ErrCorruptPayload }
