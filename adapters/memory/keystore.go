// Package memory provides in-memory implementations of the store ports.
package memory

import (
	"bytes"
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/artpar/quotagate/domain/account"
	"github.com/artpar/quotagate/ports"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 32

// shardIndex picks a shard for key using FNV-1a.
func shardIndex(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// keyShard is a single shard of the key store.
type keyShard struct {
	mu      sync.Mutex
	records map[string]account.Record
}

// KeyStore is a sharded in-memory implementation of ports.KeyStore.
// Each key lives in exactly one shard; a charge holds only that shard's
// lock, so charges on keys in different shards never contend.
type KeyStore struct {
	shards []*keyShard
}

// NewKeyStore creates a key store with numShards shards
// (DefaultShards when numShards <= 0).
func NewKeyStore(numShards int) *KeyStore {
	if numShards <= 0 {
		numShards = DefaultShards
	}
	s := &KeyStore{shards: make([]*keyShard, numShards)}
	for i := range s.shards {
		s.shards[i] = &keyShard{records: make(map[string]account.Record)}
	}
	return s
}

func (s *KeyStore) shard(apiKey string) *keyShard {
	return s.shards[shardIndex(apiKey, len(s.shards))]
}

// Get retrieves the record for an API key.
func (s *KeyStore) Get(ctx context.Context, apiKey string) (account.Record, error) {
	sh := s.shard(apiKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[apiKey]
	if !ok {
		return account.Record{}, ports.ErrNotFound
	}
	return clone(rec), nil
}

// Create inserts a new record without overwriting.
func (s *KeyStore) Create(ctx context.Context, rec account.Record) error {
	sh := s.shard(rec.APIKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.records[rec.APIKey]; ok {
		return ports.ErrAlreadyExists
	}
	sh.records[rec.APIKey] = clone(rec)
	return nil
}

// Put upserts a record.
func (s *KeyStore) Put(ctx context.Context, rec account.Record) error {
	sh := s.shard(rec.APIKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.records[rec.APIKey] = clone(rec)
	return nil
}

// SetActive flips the active flag under the key's shard lock.
func (s *KeyStore) SetActive(ctx context.Context, apiKey string, active bool) error {
	sh := s.shard(apiKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[apiKey]
	if !ok {
		return ports.ErrNotFound
	}
	rec.Active = active
	sh.records[apiKey] = rec
	return nil
}

// CompareAndCharge increments used under the key's shard lock.
func (s *KeyStore) CompareAndCharge(ctx context.Context, apiKey string, expectedUsed int64) (int64, error) {
	sh := s.shard(apiKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[apiKey]
	if !ok {
		return 0, ports.ErrNotFound
	}
	if !rec.Active {
		return rec.Used, ports.ErrInactive
	}
	if rec.Used >= rec.Quota {
		return rec.Used, ports.ErrQuotaExceeded
	}
	if rec.Used != expectedUsed {
		return rec.Used, ports.ErrConflict
	}

	rec.Used++
	sh.records[apiKey] = rec
	return rec.Used, nil
}

// List returns records ordered by creation time, then key.
func (s *KeyStore) List(ctx context.Context, limit, offset int) ([]account.Record, error) {
	var all []account.Record
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, rec := range sh.records {
			all = append(all, clone(rec))
		}
		sh.mu.Unlock()
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].APIKey < all[j].APIKey
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Ping always succeeds.
func (s *KeyStore) Ping(ctx context.Context) error {
	return nil
}

// Len returns the total number of records (for testing).
func (s *KeyStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.records)
		sh.mu.Unlock()
	}
	return total
}

func clone(rec account.Record) account.Record {
	rec.SecretHash = bytes.Clone(rec.SecretHash)
	return rec
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
