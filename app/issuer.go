package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/artpar/quotagate/domain/account"
	"github.com/artpar/quotagate/domain/gate"
	"github.com/artpar/quotagate/domain/plan"
	"github.com/artpar/quotagate/ports"
	"github.com/rs/zerolog"
)

const (
	// secretHexLen is 192 bits of entropy.
	secretHexLen = 48

	// maxIssueAttempts bounds regeneration on key collision.
	maxIssueAttempts = 5
)

// Issue channels, used as a metrics label.
const (
	ChannelAPI     = "api"
	ChannelWebhook = "webhook"
	ChannelCLI     = "cli"
)

// KeyIssuer mints API keys with a paired secret.
type KeyIssuer struct {
	keys    ports.KeyStore
	random  ports.Random
	clock   ports.Clock
	hasher  ports.Hasher
	metrics ports.GateMetrics
	logger  zerolog.Logger

	keyPrefix string
	plans     atomic.Pointer[[]plan.Plan]
}

// IssuerDeps contains dependencies for KeyIssuer.
type IssuerDeps struct {
	Keys    ports.KeyStore
	Random  ports.Random
	Clock   ports.Clock
	Hasher  ports.Hasher
	Metrics ports.GateMetrics // optional
	Logger  zerolog.Logger
}

// IssuerConfig contains configuration for KeyIssuer.
type IssuerConfig struct {
	KeyPrefix string
	Plans     []plan.Plan
}

// Issued is a newly created account together with its plaintext
// secret. The secret is never stored and cannot be recovered later.
type Issued struct {
	Record account.Record
	Secret string
}

// NewKeyIssuer creates a new key issuer.
func NewKeyIssuer(deps IssuerDeps, cfg IssuerConfig) *KeyIssuer {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	ki := &KeyIssuer{
		keys:      deps.Keys,
		random:    deps.Random,
		clock:     deps.Clock,
		hasher:    deps.Hasher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		keyPrefix: cfg.KeyPrefix,
	}
	ki.UpdatePlans(cfg.Plans)
	return ki
}

// UpdatePlans swaps the plan table. Safe to call while issuing.
func (ki *KeyIssuer) UpdatePlans(plans []plan.Plan) {
	cp := make([]plan.Plan, len(plans))
	copy(cp, plans)
	ki.plans.Store(&cp)
}

// Plans returns the current plan table.
func (ki *KeyIssuer) Plans() []plan.Plan {
	return *ki.plans.Load()
}

// Issue mints a key on planID.
func (ki *KeyIssuer) Issue(ctx context.Context, planID string) (Issued, error) {
	return ki.IssueVia(ctx, planID, ChannelAPI)
}

// IssueVia mints a key on planID and attributes it to channel.
func (ki *KeyIssuer) IssueVia(ctx context.Context, planID, channel string) (Issued, error) {
	p, ok := plan.Find(ki.Plans(), planID)
	if !ok {
		return Issued{}, &gate.Error{
			Kind:    gate.KindUnknownPlan,
			Status:  gate.ErrUnknownPlan.Status,
			Message: fmt.Sprintf("unknown plan %q", planID),
		}
	}

	secret, err := ki.random.String(secretHexLen)
	if err != nil {
		return Issued{}, ki.storageError("generate_secret", err)
	}
	secretHash, err := ki.hasher.Hash(secret)
	if err != nil {
		return Issued{}, ki.storageError("hash_secret", err)
	}

	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		body, err := ki.random.String(account.KeyHexLen)
		if err != nil {
			return Issued{}, ki.storageError("generate_key", err)
		}

		rec := account.Record{
			APIKey:     ki.keyPrefix + body,
			SecretHash: secretHash,
			Active:     true,
			Plan:       p.ID,
			Quota:      p.Quota,
			Used:       0,
			CreatedAt:  ki.clock.Now(),
		}

		err = ki.keys.Create(ctx, rec)
		if errors.Is(err, ports.ErrAlreadyExists) {
			ki.logger.Warn().Int("attempt", attempt).Msg("generated api key collided, regenerating")
			continue
		}
		if err != nil {
			return Issued{}, ki.storageError("create", err)
		}

		ki.metrics.Issued(p.ID, channel)
		ki.logger.Info().
			Str("api_key", account.Mask(rec.APIKey)).
			Str("plan", p.ID).
			Str("channel", channel).
			Msg("api key issued")
		return Issued{Record: rec, Secret: secret}, nil
	}

	return Issued{}, ki.storageError("create", fmt.Errorf("key collided %d times", maxIssueAttempts))
}

// SetActive activates or deactivates apiKey. Used is left as is, so a
// reactivated key resumes where it stopped.
func (ki *KeyIssuer) SetActive(ctx context.Context, apiKey string, active bool) error {
	err := ki.keys.SetActive(ctx, apiKey, active)
	if errors.Is(err, ports.ErrNotFound) {
		return gate.ErrNotFound
	}
	if err != nil {
		return ki.storageError("set_active", err)
	}

	ki.logger.Info().
		Str("api_key", account.Mask(apiKey)).
		Bool("active", active).
		Msg("api key state changed")
	return nil
}

func (ki *KeyIssuer) storageError(op string, err error) error {
	ki.metrics.StorageError(op)
	ki.logger.Error().Err(err).Str("op", op).Msg("key issuance failed")
	return gate.Storage(op, err)
}
