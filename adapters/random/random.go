// Package random provides Random implementations.
package random

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/artpar/quotagate/ports"
)

// Real draws from crypto/rand.
type Real struct{}

// Bytes generates n cryptographically secure random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// String generates a random lowercase hex string of n characters.
func (r Real) String(n int) (string, error) {
	return hexString(r, n)
}

var _ ports.Random = Real{}

// Fake returns preset values, then deterministic counter-derived bytes.
type Fake struct {
	mu      sync.Mutex
	counter int
	values  [][]byte
	index   int
}

// NewFake creates a fake random source.
func NewFake() *Fake {
	return &Fake{}
}

// WithValues queues byte values returned by the next Bytes calls.
// Queuing the same value twice forces an identifier collision.
func (f *Fake) WithValues(values ...[]byte) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = values
	f.index = 0
	return f
}

// Bytes returns the next preset value (zero-padded to n) or
// deterministic bytes derived from an internal counter.
func (f *Fake) Bytes(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := make([]byte, n)
	if f.index < len(f.values) {
		copy(b, f.values[f.index])
		f.index++
		return b, nil
	}

	f.counter++
	for i := range b {
		b[i] = byte((f.counter*31 + i) % 256)
	}
	return b, nil
}

// String returns a deterministic hex string of n characters.
func (f *Fake) String(n int) (string, error) {
	return hexString(f, n)
}

var _ ports.Random = (*Fake)(nil)

func hexString(r ports.Random, n int) (string, error) {
	b, err := r.Bytes((n + 1) / 2)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b)[:n], nil
}
