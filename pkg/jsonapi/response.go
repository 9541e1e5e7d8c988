package jsonapi

import (
	"encoding/json"
	"net/http"
)

// WriteDocument writes a JSON:API document to the response.
func WriteDocument(w http.ResponseWriter, status int, doc Document) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(doc)
}

// NewErrorDocument creates an error document.
func NewErrorDocument(errs ...Error) Document {
	return Document{Errors: errs}
}

// WriteError writes an error response with one or more errors.
// The HTTP status is derived from the first error's status field.
func WriteError(w http.ResponseWriter, errs ...Error) {
	if len(errs) == 0 {
		WriteDocument(w, http.StatusInternalServerError, NewErrorDocument(ErrInternal("")))
		return
	}

	status := errs[0].StatusCode()
	if status == 0 {
		status = http.StatusInternalServerError
	}

	WriteDocument(w, status, NewErrorDocument(errs...))
}
