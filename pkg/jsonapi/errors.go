package jsonapi

import (
	"net/http"
	"strconv"
)

// ErrorBuilder provides a fluent API for building Error objects.
type ErrorBuilder struct {
	err Error
}

// NewError creates a new ErrorBuilder with the given status and code.
// The title is the standard reason phrase for status.
func NewError(status int, code string) *ErrorBuilder {
	return &ErrorBuilder{
		err: Error{
			Status: strconv.Itoa(status),
			Code:   code,
			Title:  http.StatusText(status),
		},
	}
}

// Detail sets the error detail message.
func (b *ErrorBuilder) Detail(detail string) *ErrorBuilder {
	b.err.Detail = detail
	return b
}

// Header sets the header that caused the error.
func (b *ErrorBuilder) Header(header string) *ErrorBuilder {
	if b.err.Source == nil {
		b.err.Source = &ErrorSource{}
	}
	b.err.Source.Header = header
	return b
}

// Build returns the constructed Error.
func (b *ErrorBuilder) Build() Error {
	return b.err
}

// StatusCode returns the HTTP status code as an int.
func (e Error) StatusCode() int {
	code, _ := strconv.Atoi(e.Status)
	return code
}

// ErrInternal creates a 500 Internal Server Error.
func ErrInternal(detail string) Error {
	if detail == "" {
		detail = "An internal error occurred"
	}
	return NewError(http.StatusInternalServerError, "internal_error").Detail(detail).Build()
}

// ErrBadGateway creates a 502 Bad Gateway error.
func ErrBadGateway(detail string) Error {
	if detail == "" {
		detail = "Upstream request failed"
	}
	return NewError(http.StatusBadGateway, "upstream_error").Detail(detail).Build()
}

// ErrServiceUnavailable creates a 503 Service Unavailable error.
func ErrServiceUnavailable(detail string) Error {
	if detail == "" {
		detail = "Service temporarily unavailable"
	}
	return NewError(http.StatusServiceUnavailable, "service_unavailable").Detail(detail).Build()
}
