package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/artpar/quotagate/adapters/clock"
	"github.com/artpar/quotagate/adapters/hasher"
	"github.com/artpar/quotagate/adapters/idgen"
	"github.com/artpar/quotagate/adapters/memory"
	"github.com/artpar/quotagate/adapters/random"
	"github.com/artpar/quotagate/app"
	"github.com/artpar/quotagate/domain/account"
	"github.com/artpar/quotagate/domain/plan"
	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/ports"
	"github.com/rs/zerolog"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

const (
	testPrefix = "qk_"
	testKey    = "qk_0123456789abcdef0123456789abcdef"
	testSecret = "s3cret"
)

type testEnv struct {
	keys   ports.KeyStore
	ledger ports.UsageLedger
	clock  *clock.Fake
	random *random.Fake

	guard    *app.QuotaGuard
	issuer   *app.KeyIssuer
	reporter *app.SummaryReporter
}

func newTestEnv() *testEnv {
	return newTestEnvWith(memory.NewKeyStore(4), memory.NewLedger(4))
}

func newTestEnvWith(keys ports.KeyStore, ledger ports.UsageLedger) *testEnv {
	env := &testEnv{
		keys:   keys,
		ledger: ledger,
		clock:  clock.NewFake(baseTime).WithStep(time.Second),
		random: random.NewFake(),
	}
	logger := zerolog.Nop()

	env.guard = app.NewQuotaGuard(app.GuardDeps{
		Keys:   keys,
		Ledger: ledger,
		Clock:  env.clock,
		IDGen:  idgen.NewSequential("evt-"),
		Hasher: hasher.Fake{},
		Logger: logger,
	}, app.GuardConfig{KeyPrefix: testPrefix})

	env.issuer = app.NewKeyIssuer(app.IssuerDeps{
		Keys:   keys,
		Random: env.random,
		Clock:  env.clock,
		Hasher: hasher.Fake{},
		Logger: logger,
	}, app.IssuerConfig{KeyPrefix: testPrefix, Plans: plan.Defaults()})

	env.reporter = app.NewSummaryReporter(app.SummaryDeps{
		Keys:   keys,
		Ledger: ledger,
		Hasher: hasher.Fake{},
		Logger: logger,
	}, testPrefix)

	return env
}

// seed stores an active account for testKey.
func (env *testEnv) seed(quota, used int64) account.Record {
	rec := account.Record{
		APIKey:     testKey,
		SecretHash: []byte(testSecret),
		Active:     true,
		Plan:       plan.Basic,
		Quota:      quota,
		Used:       used,
		CreatedAt:  baseTime,
	}
	if err := env.keys.Put(context.Background(), rec); err != nil {
		panic(err)
	}
	return rec
}

// failingLedger rejects every append.
type failingLedger struct {
	ports.UsageLedger
}

var errDiskFull = errors.New("disk full")

func (failingLedger) Append(context.Context, usage.Event) error {
	return errDiskFull
}

// failingKeyStore fails every read.
type failingKeyStore struct {
	ports.KeyStore
}

func (failingKeyStore) Get(context.Context, string) (account.Record, error) {
	return account.Record{}, errDiskFull
}

// conflictOnce forces the first CompareAndCharge to lose a race by
// charging the key underneath the caller.
type conflictOnce struct {
	ports.KeyStore
	once sync.Once
}

func (c *conflictOnce) CompareAndCharge(ctx context.Context, apiKey string, expected int64) (int64, error) {
	c.once.Do(func() {
		c.KeyStore.CompareAndCharge(ctx, apiKey, expected)
	})
	return c.KeyStore.CompareAndCharge(ctx, apiKey, expected)
}

// deactivateBeforeCharge switches the key off between the guard's read
// and its atomic charge.
type deactivateBeforeCharge struct {
	ports.KeyStore
}

func (d deactivateBeforeCharge) CompareAndCharge(ctx context.Context, apiKey string, expected int64) (int64, error) {
	d.KeyStore.SetActive(ctx, apiKey, false)
	return d.KeyStore.CompareAndCharge(ctx, apiKey, expected)
}
