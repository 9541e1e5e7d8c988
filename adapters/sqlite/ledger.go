package sqlite

import (
	"context"

	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/ports"
)

// Ledger implements ports.UsageLedger using SQLite.
type Ledger struct {
	db *DB
}

// NewLedger creates a new SQLite usage ledger.
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

// Append stores one event.
func (l *Ledger) Append(ctx context.Context, e usage.Event) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO usage_events (id, api_key, path, status, source, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.APIKey, e.Path, e.Status, string(e.Source), e.Timestamp.UTC())
	return err
}

// Query returns all events for a key in insertion order.
func (l *Ledger) Query(ctx context.Context, apiKey string) ([]usage.Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, api_key, path, status, source, timestamp
		FROM usage_events
		WHERE api_key = ?
		ORDER BY seq ASC
	`, apiKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []usage.Event
	for rows.Next() {
		var e usage.Event
		var source string
		if err := rows.Scan(&e.ID, &e.APIKey, &e.Path, &e.Status, &source, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Source = usage.Source(source)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Count returns the number of events for a key.
func (l *Ledger) Count(ctx context.Context, apiKey string) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_events WHERE api_key = ?`, apiKey).Scan(&n)
	return n, err
}

// Ensure interface compliance.
var _ ports.UsageLedger = (*Ledger)(nil)
