package memory

import (
	"context"
	"sync"

	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/ports"
)

type ledgerShard struct {
	mu     sync.RWMutex
	events map[string][]usage.Event
}

// Ledger is a sharded in-memory implementation of ports.UsageLedger.
type Ledger struct {
	shards []*ledgerShard
}

// NewLedger creates a ledger with numShards shards
// (DefaultShards when numShards <= 0).
func NewLedger(numShards int) *Ledger {
	if numShards <= 0 {
		numShards = DefaultShards
	}
	l := &Ledger{shards: make([]*ledgerShard, numShards)}
	for i := range l.shards {
		l.shards[i] = &ledgerShard{events: make(map[string][]usage.Event)}
	}
	return l
}

func (l *Ledger) shard(apiKey string) *ledgerShard {
	return l.shards[shardIndex(apiKey, len(l.shards))]
}

// Append adds one event to the key's log.
func (l *Ledger) Append(ctx context.Context, e usage.Event) error {
	sh := l.shard(e.APIKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.events[e.APIKey] = append(sh.events[e.APIKey], e)
	return nil
}

// Query returns a copy of the key's events in insertion order.
func (l *Ledger) Query(ctx context.Context, apiKey string) ([]usage.Event, error) {
	sh := l.shard(apiKey)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	events := sh.events[apiKey]
	out := make([]usage.Event, len(events))
	copy(out, events)
	return out, nil
}

// Count returns the number of events for a key.
func (l *Ledger) Count(ctx context.Context, apiKey string) (int64, error) {
	sh := l.shard(apiKey)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	return int64(len(sh.events[apiKey])), nil
}

// Ensure interface compliance.
var _ ports.UsageLedger = (*Ledger)(nil)
