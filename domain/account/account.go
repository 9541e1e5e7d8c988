// Package account provides the account record value type and pure
// functions for quota checks and key shape validation.
// This package has NO dependencies on I/O.
package account

import "time"

// Record is the state held for one API key (immutable value type).
type Record struct {
	APIKey     string
	SecretHash []byte // hash of the secret handed out at issuance
	Active     bool
	Plan       string
	Quota      int64 // lifetime ceiling on charges
	Used       int64 // never decreases
	CreatedAt  time.Time
}

// Reasons a record may not be charged.
const (
	ReasonOK            = ""
	ReasonInactive      = "inactive"
	ReasonQuotaExceeded = "quota_exceeded"
)

// Check reports whether one more unit may be charged against rec.
// Inactive takes precedence over quota exhaustion.
// This is a PURE function.
func Check(rec Record) string {
	if !rec.Active {
		return ReasonInactive
	}
	if rec.Used >= rec.Quota {
		return ReasonQuotaExceeded
	}
	return ReasonOK
}

// Remaining returns quota minus used, never negative.
func Remaining(rec Record) int64 {
	if rec.Used >= rec.Quota {
		return 0
	}
	return rec.Quota - rec.Used
}
