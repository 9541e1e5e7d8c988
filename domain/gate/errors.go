// Package gate defines the error kinds returned by the quota gate,
// the key issuer and the summary reporter.
package gate

import (
	"errors"
	"fmt"
)

// Kind classifies a gate error.
type Kind string

const (
	KindInvalidKey       Kind = "invalid_api_key"
	KindInactiveKey      Kind = "inactive_api_key"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindUnauthorized     Kind = "unauthorized"
	KindNotFound         Kind = "not_found"
	KindStorage          Kind = "storage_error"
	KindMalformedRequest Kind = "malformed_request"
	KindUnknownPlan      Kind = "unknown_plan"
	KindInvalidProduct   Kind = "invalid_product"
)

// Error is a classified failure with the HTTP status it maps to.
// Only KindStorage is an internal fault; every other kind is final for
// the caller and is never retried by the gate.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Common errors
var (
	ErrInvalidKey = &Error{
		Kind:    KindInvalidKey,
		Status:  403,
		Message: "Invalid API key",
	}
	ErrInactiveKey = &Error{
		Kind:    KindInactiveKey,
		Status:  403,
		Message: "API key is inactive",
	}
	ErrQuotaExceeded = &Error{
		Kind:    KindQuotaExceeded,
		Status:  429,
		Message: "Quota exceeded",
	}
	ErrUnauthorized = &Error{
		Kind:    KindUnauthorized,
		Status:  401,
		Message: "Invalid API secret",
	}
	ErrNotFound = &Error{
		Kind:    KindNotFound,
		Status:  403,
		Message: "API key not found",
	}
	ErrStorage = &Error{
		Kind:    KindStorage,
		Status:  500,
		Message: "Storage failure",
	}
	ErrMalformedRequest = &Error{
		Kind:    KindMalformedRequest,
		Status:  400,
		Message: "Malformed request",
	}
	ErrUnknownPlan = &Error{
		Kind:    KindUnknownPlan,
		Status:  400,
		Message: "Unknown plan",
	}
	ErrInvalidProduct = &Error{
		Kind:    KindInvalidProduct,
		Status:  400,
		Message: "Invalid product",
	}
)

// Storage wraps a store failure for operation op.
func Storage(op string, err error) *Error {
	return &Error{
		Kind:    KindStorage,
		Status:  500,
		Message: op + " failed",
		Err:     err,
	}
}

// Malformed returns a malformed-request error with a specific message.
func Malformed(msg string, err error) *Error {
	return &Error{
		Kind:    KindMalformedRequest,
		Status:  400,
		Message: msg,
		Err:     err,
	}
}

// As extracts the *Error from err. Unclassified errors are reported
// as storage errors so callers always fail closed.
func As(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return Storage("operation", err)
}
