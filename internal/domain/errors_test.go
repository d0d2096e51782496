package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestMCPError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
	}{
		{
			name:      "Basic error",
			code:      ErrCodeInvalidInput,
			message:   "Invalid calculator input",
			details:   "The request body is not a JSON object",
			requestID: "req-123",
		},
		{
			name:      "Database error",
			code:      ErrCodeDatabase,
			message:   "Database connection failed",
			details:   "Unable to connect to PostgreSQL",
			requestID: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewMCPError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}
			if err.Details != tt.details {
				t.Errorf("Expected details %s, got %s", tt.details, err.Details)
			}
			if err.RequestID != tt.requestID {
				t.Errorf("Expected requestID %s, got %s", tt.requestID, err.RequestID)
			}
			if time.Since(err.Timestamp) > time.Minute {
				t.Errorf("Timestamp should be recent, got %v", err.Timestamp)
			}

			expectedError := tt.code + ": " + tt.message
			if err.Error() != expectedError {
				t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"not found", fmt.Errorf("calculator foo: %w", ErrNotFound), ErrCodeNotFound},
		{"missing parameter", &MissingParameterError{Name: "age"}, ErrCodeValidation},
		{"aggregate", ParameterErrors{&InvalidChoiceError{Name: "asa", Value: "VII"}}, ErrCodeValidation},
		{"field validation", NewValidationError("patient_id", "required", ""), ErrCodeValidation},
		{"corrupt payload", &CorruptPayloadError{Cause: errors.New("eof")}, ErrCodeCorruptPayload},
		{"other", errors.New("boom"), ErrCodeInternalServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParameterErrors(t *testing.T) {
	errs := ParameterErrors{
		&MissingParameterError{Name: "age"},
		&InvalidParameterTypeError{Name: "diabetes", Expected: KindBoolean, Got: ValueText},
		&OutOfRangeError{Name: "spo2", Value: 140, Min: Float(0), Max: Float(100)},
	}
	var err error = errs

	if !errors.Is(err, ErrValidation) {
		t.Error("Expected aggregate to match ErrValidation")
	}

	var missing *MissingParameterError
	if !errors.As(err, &missing) || missing.Name != "age" {
		t.Errorf("Expected MissingParameterError for age, got %v", missing)
	}

	var typeErr *InvalidParameterTypeError
	if !errors.As(err, &typeErr) || typeErr.Expected != KindBoolean {
		t.Errorf("Expected InvalidParameterTypeError expecting boolean, got %v", typeErr)
	}

	names := errs.Parameters()
	if strings.Join(names, ",") != "age,diabetes,spo2" {
		t.Errorf("Unexpected parameter order: %v", names)
	}

	if !strings.HasPrefix(err.Error(), "3 invalid parameters") {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	single := ParameterErrors{&MissingParameterError{Name: "age"}}
	if single.Error() != `missing parameter "age"` {
		t.Errorf("Unexpected single message: %s", single.Error())
	}
}

func TestOutOfRangeErrorMessage(t *testing.T) {
	err := &OutOfRangeError{Name: "hr", Value: -3, Min: Float(0)}
	if err.Error() != `parameter "hr": -3 is outside [0, +inf]` {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

func TestCorruptPayloadError(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := fmt.Errorf("decode row: %w", &CorruptPayloadError{Cause: cause})

	if !errors.Is(err, ErrCorruptPayload) {
		t.Error("Expected wrapped error to match ErrCorruptPayload")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected wrapped error to expose its cause")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("Corrupt payload must not be a validation error")
	}
}
