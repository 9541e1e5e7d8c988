package hasher_test

import (
	"bytes"
	"testing"

	"github.com/artpar/quotagate/adapters/hasher"
	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt_RoundTrip(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)

	hash, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if bytes.Equal(hash, []byte("s3cret")) {
		t.Fatal("hash must not equal plaintext")
	}
	if !h.Compare(hash, "s3cret") {
		t.Error("Compare() rejected the right secret")
	}
	if h.Compare(hash, "s3cret ") {
		t.Error("Compare() accepted a wrong secret")
	}
}

func TestBcrypt_InvalidCostFallsBack(t *testing.T) {
	h := hasher.NewBcrypt(100)

	hash, err := h.Hash("x")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	cost, err := bcrypt.Cost(hash)
	if err != nil {
		t.Fatalf("Cost() error: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", cost, bcrypt.DefaultCost)
	}
}

func TestBcrypt_CompareGarbageHash(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)
	if h.Compare([]byte("not-a-hash"), "x") {
		t.Error("Compare() accepted a malformed hash")
	}
}

func TestFake(t *testing.T) {
	f := hasher.Fake{}
	hash, _ := f.Hash("abc")

	if !f.Compare(hash, "abc") {
		t.Error("Fake.Compare() rejected equal input")
	}
	if f.Compare(hash, "abd") || f.Compare(hash, "ab") || f.Compare(hash, "") {
		t.Error("Fake.Compare() accepted different input")
	}
}
