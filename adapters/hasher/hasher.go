// Package hasher provides secret hashing implementations.
package hasher

import (
	"crypto/subtle"

	"github.com/artpar/quotagate/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes secrets with bcrypt. Comparison is constant time.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher. Out-of-range costs fall back to
// bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash generates a bcrypt hash from plaintext.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare checks if plaintext matches hash.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

var _ ports.Hasher = (*Bcrypt)(nil)

// Fake stores plaintext (NOT FOR PRODUCTION).
type Fake struct{}

// Hash returns the plaintext bytes.
func (Fake) Hash(plaintext string) ([]byte, error) {
	return []byte(plaintext), nil
}

// Compare checks equality in constant time.
func (Fake) Compare(hash []byte, plaintext string) bool {
	return subtle.ConstantTimeCompare(hash, []byte(plaintext)) == 1
}

var _ ports.Hasher = Fake{}
