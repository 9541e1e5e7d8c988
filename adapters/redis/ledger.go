package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/ports"
	goredis "github.com/redis/go-redis/v9"
)

// Ledger implements ports.UsageLedger with one Redis list per key.
type Ledger struct {
	client *goredis.Client
	keys   keyspace
}

// NewLedger creates a Redis usage ledger. Keys are namespaced by prefix.
func NewLedger(client *goredis.Client, prefix string) *Ledger {
	return &Ledger{client: client, keys: keyspace(prefix)}
}

// storedEvent is the JSON form of an event in a ledger list.
type storedEvent struct {
	ID        string    `json:"id"`
	Path      string    `json:"path,omitempty"`
	Status    int       `json:"status,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Append pushes one event onto the key's list.
func (l *Ledger) Append(ctx context.Context, e usage.Event) error {
	data, err := json.Marshal(storedEvent{
		ID:        e.ID,
		Path:      e.Path,
		Status:    e.Status,
		Source:    string(e.Source),
		Timestamp: e.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return l.client.RPush(ctx, l.keys.events(e.APIKey), data).Err()
}

// Query returns all events for a key in insertion order.
func (l *Ledger) Query(ctx context.Context, apiKey string) ([]usage.Event, error) {
	items, err := l.client.LRange(ctx, l.keys.events(apiKey), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]usage.Event, 0, len(items))
	for _, item := range items {
		var se storedEvent
		if err := json.Unmarshal([]byte(item), &se); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, usage.Event{
			ID:        se.ID,
			APIKey:    apiKey,
			Path:      se.Path,
			Status:    se.Status,
			Source:    usage.Source(se.Source),
			Timestamp: se.Timestamp,
		})
	}
	return events, nil
}

// Count returns the length of the key's list.
func (l *Ledger) Count(ctx context.Context, apiKey string) (int64, error) {
	return l.client.LLen(ctx, l.keys.events(apiKey)).Result()
}

// Ensure interface compliance.
var _ ports.UsageLedger = (*Ledger)(nil)
