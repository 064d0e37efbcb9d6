package network

import (
	"errors"
	"fmt"

	"github.com/ayo6706/payout-settlement/internal/domain"
)

var (
	// ErrConnection covers timeouts, 5xx responses and rate limiting.
	ErrConnection = errors.New("payment network unreachable")
	// ErrAuthentication covers rejected or missing credentials.
	ErrAuthentication = errors.New("payment network rejected credentials")
)

// ValidationError is a structured rejection from the network. It is a financial
// fact about the request and is never retried.
type ValidationError struct {
	Code    string
	Message string
	Reason  domain.FailureReason
}

// NewValidationError builds a ValidationError and classifies its failure reason.
func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{
		Code:    code,
		Message: message,
		Reason:  ClassifyFailure(message),
	}
}

func (e *ValidationError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("payment network validation error: %s", e.Message)
	}
	return fmt.Sprintf("payment network validation error (%s): %s", e.Code, e.Message)
}

// IsInfrastructure reports whether err is a connectivity or authentication
// problem rather than a statement about the money.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrAuthentication)
}

// AsValidation unwraps a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
