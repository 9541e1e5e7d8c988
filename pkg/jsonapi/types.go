// Package jsonapi provides JSON:API error documents and response helpers.
// See https://jsonapi.org/format/#errors for the error object format.
package jsonapi

// Document is a JSON:API top-level error document.
type Document struct {
	Errors []Error `json:"errors"`
}

// Error represents a JSON:API error object.
type Error struct {
	Status string       `json:"status"`
	Code   string       `json:"code"`
	Title  string       `json:"title"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// ErrorSource indicates the source of an error.
type ErrorSource struct {
	Header string `json:"header,omitempty"` // Header that caused error
}

// ContentType is the JSON:API media type.
const ContentType = "application/vnd.api+json"
