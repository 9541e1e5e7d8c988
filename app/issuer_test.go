package app_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/artpar/quotagate/adapters/clock"
	"github.com/artpar/quotagate/adapters/hasher"
	"github.com/artpar/quotagate/adapters/memory"
	"github.com/artpar/quotagate/adapters/random"
	"github.com/artpar/quotagate/app"
	"github.com/artpar/quotagate/domain/account"
	"github.com/artpar/quotagate/domain/gate"
	"github.com/artpar/quotagate/domain/plan"
	"github.com/rs/zerolog"
)

func TestKeyIssuer_Issue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	tests := []struct {
		plan  string
		quota int64
	}{
		{"basic", 1000},
		{"premium", 10000},
	}

	for _, tt := range tests {
		t.Run(tt.plan, func(t *testing.T) {
			issued, err := env.issuer.Issue(ctx, tt.plan)
			if err != nil {
				t.Fatalf("Issue() error: %v", err)
			}
			rec := issued.Record
			if !account.ValidateFormat(rec.APIKey, testPrefix) {
				t.Errorf("APIKey %q has wrong shape", rec.APIKey)
			}
			if len(issued.Secret) != 48 {
				t.Errorf("secret length = %d, want 48", len(issued.Secret))
			}
			if strings.Contains(issued.Secret, strings.TrimPrefix(rec.APIKey, testPrefix)) {
				t.Error("secret contains key material")
			}
			if rec.Plan != tt.plan || rec.Quota != tt.quota || rec.Used != 0 || !rec.Active {
				t.Errorf("record = %+v", rec)
			}

			stored, err := env.keys.Get(ctx, rec.APIKey)
			if err != nil {
				t.Fatalf("stored record missing: %v", err)
			}
			if len(stored.SecretHash) == 0 {
				t.Error("secret hash not stored")
			}
		})
	}
}

func TestKeyIssuer_UnknownPlan(t *testing.T) {
	env := newTestEnv()

	_, err := env.issuer.Issue(context.Background(), "platinum")
	if !errors.Is(err, gate.ErrUnknownPlan) {
		t.Fatalf("error = %v, want unknown plan", err)
	}
	if gate.As(err).Status != 400 {
		t.Errorf("status = %d, want 400", gate.As(err).Status)
	}
}

func TestKeyIssuer_RegeneratesOnCollision(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	keyA := bytes.Repeat([]byte{0xaa}, 16)
	keyB := bytes.Repeat([]byte{0xbb}, 16)
	env.random.WithValues(
		[]byte("secret-1"), keyA,
		[]byte("secret-2"), keyA, keyB,
	)

	first, err := env.issuer.Issue(ctx, "basic")
	if err != nil {
		t.Fatalf("first Issue() error: %v", err)
	}
	second, err := env.issuer.Issue(ctx, "basic")
	if err != nil {
		t.Fatalf("second Issue() error: %v", err)
	}

	if first.Record.APIKey == second.Record.APIKey {
		t.Fatal("collision produced duplicate key")
	}
	if second.Record.APIKey != "qk_"+strings.Repeat("bb", 16) {
		t.Errorf("second key = %s", second.Record.APIKey)
	}

	// the first account is untouched
	rec, _ := env.keys.Get(ctx, first.Record.APIKey)
	if string(rec.SecretHash) != first.Secret {
		t.Error("collision overwrote the existing account")
	}
}

func TestKeyIssuer_GivesUpAfterRepeatedCollisions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	key := bytes.Repeat([]byte{0xcc}, 16)
	env.random.WithValues([]byte("s1"), key, []byte("s2"), key, key, key, key, key)

	if _, err := env.issuer.Issue(ctx, "basic"); err != nil {
		t.Fatalf("first Issue() error: %v", err)
	}
	_, err := env.issuer.Issue(ctx, "basic")
	if !errors.Is(err, gate.ErrStorage) {
		t.Fatalf("error = %v, want storage error", err)
	}
}

func TestKeyIssuer_Uniqueness(t *testing.T) {
	ctx := context.Background()
	issuer := app.NewKeyIssuer(app.IssuerDeps{
		Keys:   memory.NewKeyStore(16),
		Random: random.Real{},
		Clock:  clock.Real{},
		Hasher: hasher.Fake{},
		Logger: zerolog.Nop(),
	}, app.IssuerConfig{KeyPrefix: testPrefix, Plans: plan.Defaults()})

	const n = 5000
	keys := make(map[string]bool, n)
	secrets := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		issued, err := issuer.Issue(ctx, "basic")
		if err != nil {
			t.Fatalf("Issue() error at %d: %v", i, err)
		}
		if keys[issued.Record.APIKey] {
			t.Fatalf("duplicate key %s", issued.Record.APIKey)
		}
		if secrets[issued.Secret] {
			t.Fatalf("duplicate secret at %d", i)
		}
		keys[issued.Record.APIKey] = true
		secrets[issued.Secret] = true
	}
}

func TestKeyIssuer_UpdatePlans(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	env.issuer.UpdatePlans([]plan.Plan{{ID: "starter", Name: "Starter", Quota: 50}})

	issued, err := env.issuer.Issue(ctx, "starter")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if issued.Record.Quota != 50 {
		t.Errorf("Quota = %d, want 50", issued.Record.Quota)
	}
	if _, err := env.issuer.Issue(ctx, "basic"); !errors.Is(err, gate.ErrUnknownPlan) {
		t.Errorf("removed plan error = %v, want unknown plan", err)
	}
}

func TestKeyIssuer_UsesClock(t *testing.T) {
	env := newTestEnv()
	env.clock.Set(baseTime.Add(48 * time.Hour))

	issued, err := env.issuer.Issue(context.Background(), "basic")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if !issued.Record.CreatedAt.Equal(baseTime.Add(48 * time.Hour)) {
		t.Errorf("CreatedAt = %v", issued.Record.CreatedAt)
	}
}

func TestKeyIssuer_SetActive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.seed(10, 4)

	if err := env.issuer.SetActive(ctx, testKey, false); err != nil {
		t.Fatalf("SetActive(false) error: %v", err)
	}
	if _, err := env.guard.AuthorizeAndCharge(ctx, testKey, "/x"); !errors.Is(err, gate.ErrInactiveKey) {
		t.Errorf("charge on deactivated key = %v, want inactive", err)
	}

	if err := env.issuer.SetActive(ctx, testKey, true); err != nil {
		t.Fatalf("SetActive(true) error: %v", err)
	}
	charge, err := env.guard.AuthorizeAndCharge(ctx, testKey, "/x")
	if err != nil {
		t.Fatalf("charge after reactivation: %v", err)
	}
	if charge.Used != 5 {
		t.Errorf("Used = %d, want 5 (used survives deactivation)", charge.Used)
	}

	if err := env.issuer.SetActive(ctx, "qk_ffffffffffffffffffffffffffffffff", false); !errors.Is(err, gate.ErrNotFound) {
		t.Errorf("unknown key error = %v, want not found", err)
	}
}
