package usage

import "time"

// Totals is the ledger-side part of a usage summary (value type).
type Totals struct {
	Requests int64
	Errors   int64
	FirstAt  time.Time
	LastAt   time.Time
}

// Aggregate counts events and errors.
// This is a PURE function.
func Aggregate(events []Event) Totals {
	var t Totals
	for _, e := range events {
		t.Requests++
		if IsError(e.Status) {
			t.Errors++
		}
		if t.FirstAt.IsZero() || e.Timestamp.Before(t.FirstAt) {
			t.FirstAt = e.Timestamp
		}
		if e.Timestamp.After(t.LastAt) {
			t.LastAt = e.Timestamp
		}
	}
	return t
}
