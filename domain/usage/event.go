// Package usage provides usage event types and aggregation functions.
// All functions are pure - no side effects.
package usage

import (
	"strconv"
	"strings"
	"time"
)

// Source identifies which entry point charged the event.
type Source string

const (
	SourceMiddleware Source = "middleware" // charged before a protected handler ran
	SourceTrack      Source = "track"      // charged through the explicit track call
)

// Event is one charge recorded in the ledger (immutable value type).
type Event struct {
	ID        string
	APIKey    string
	Path      string
	Status    int // 0 = outcome not reported
	Source    Source
	Timestamp time.Time
}

// IsError reports whether a recorded status indicates non-success.
func IsError(status int) bool {
	return status >= 400
}

// ParseStatus converts a reported outcome into a status code.
// Accepts numbers, numeric strings and word labels.
// Unknown labels map to 0.
func ParseStatus(v any) int {
	switch s := v.(type) {
	case nil:
		return 0
	case int:
		return s
	case int64:
		return int(s)
	case float64:
		return int(s)
	case string:
		s = strings.ToLower(strings.TrimSpace(s))
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		switch s {
		case "ok", "success", "succeeded":
			return 200
		case "error", "fail", "failed", "failure":
			return 500
		}
	}
	return 0
}
