// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/quotagate/domain/account"
	"github.com/artpar/quotagate/domain/usage"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Random abstracts randomness for testability.
type Random interface {
	// Bytes generates n random bytes.
	Bytes(n int) ([]byte, error)
	// String generates a random string of n characters.
	String(n int) (string, error)
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher hashes and compares secrets.
type Hasher interface {
	// Hash generates a hash from plaintext.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash in constant time.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Store errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound is returned when no account exists for a key.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by Create when the key is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInactive is returned by CompareAndCharge when the account is
	// deactivated.
	ErrInactive = errors.New("inactive")

	// ErrQuotaExceeded is returned by CompareAndCharge when used >= quota.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrConflict is returned by CompareAndCharge when the stored used
	// counter no longer matches the expected value.
	ErrConflict = errors.New("conflict")
)

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// KeyStore persists account records keyed by API key.
// Every mutating call is durable before it returns.
type KeyStore interface {
	// Get retrieves the record for an API key.
	// Returns ErrNotFound when absent.
	Get(ctx context.Context, apiKey string) (account.Record, error)

	// Create inserts a new record. Never overwrites.
	// Returns ErrAlreadyExists when the key is taken.
	Create(ctx context.Context, rec account.Record) error

	// Put upserts a record.
	Put(ctx context.Context, rec account.Record) error

	// SetActive flips the active flag without touching used.
	// Returns ErrNotFound when absent.
	SetActive(ctx context.Context, apiKey string, active bool) error

	// CompareAndCharge increments used by one if the account is active,
	// the stored used equals expectedUsed and used < quota, as one
	// indivisible step. Returns the new used value, or ErrNotFound,
	// ErrInactive, ErrQuotaExceeded, ErrConflict (checked in that order).
	CompareAndCharge(ctx context.Context, apiKey string, expectedUsed int64) (int64, error)

	// List returns records ordered by creation time.
	List(ctx context.Context, limit, offset int) ([]account.Record, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}

// UsageLedger is the append-only log of charge events.
type UsageLedger interface {
	// Append adds one immutable event.
	Append(ctx context.Context, e usage.Event) error

	// Query returns all events for a key in insertion order.
	Query(ctx context.Context, apiKey string) ([]usage.Event, error)

	// Count returns the number of events for a key.
	Count(ctx context.Context, apiKey string) (int64, error)
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// GateMetrics receives gate events. A nil GateMetrics is never passed
// to services; use NopMetrics instead.
type GateMetrics interface {
	Charged(plan, source string)
	Rejected(reason string)
	Conflict()
	Issued(plan, channel string)
	Summarized(result string)
	StorageError(op string)
}

// NopMetrics discards all gate events.
type NopMetrics struct{}

func (NopMetrics) Charged(string, string) {}
func (NopMetrics) Rejected(string)        {}
func (NopMetrics) Conflict()              {}
func (NopMetrics) Issued(string, string)  {}
func (NopMetrics) Summarized(string)      {}
func (NopMetrics) StorageError(string)    {}
