// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"

	"github.com/artpar/quotagate/domain/account"
	"github.com/artpar/quotagate/domain/gate"
	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/ports"
	"github.com/rs/zerolog"
)

// QuotaGuard is the single gate that decides whether a request may
// proceed and, if so, charges one unit and records it.
type QuotaGuard struct {
	keys    ports.KeyStore
	ledger  ports.UsageLedger
	clock   ports.Clock
	idGen   ports.IDGenerator
	hasher  ports.Hasher
	metrics ports.GateMetrics
	logger  zerolog.Logger

	keyPrefix string
}

// GuardDeps contains dependencies for QuotaGuard.
type GuardDeps struct {
	Keys    ports.KeyStore
	Ledger  ports.UsageLedger
	Clock   ports.Clock
	IDGen   ports.IDGenerator
	Hasher  ports.Hasher
	Metrics ports.GateMetrics // optional
	Logger  zerolog.Logger
}

// GuardConfig contains configuration for QuotaGuard.
type GuardConfig struct {
	KeyPrefix string
}

// NewQuotaGuard creates a new quota guard.
func NewQuotaGuard(deps GuardDeps, cfg GuardConfig) *QuotaGuard {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	return &QuotaGuard{
		keys:      deps.Keys,
		ledger:    deps.Ledger,
		clock:     deps.Clock,
		idGen:     deps.IDGen,
		hasher:    deps.Hasher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		keyPrefix: cfg.KeyPrefix,
	}
}

// ChargeRequest describes one unit of usage to authorize.
type ChargeRequest struct {
	APIKey string
	// Secret is optional. When set it must match the key's secret.
	Secret string
	Path   string
	// Status is the outcome code; 0 means not reported.
	Status int
	Source usage.Source
}

// Charge is the result of a committed charge.
type Charge struct {
	APIKey    string
	Plan      string
	Used      int64
	Quota     int64
	Remaining int64
	EventID   string
}

// AuthorizeAndCharge charges one unit against apiKey for a request to path.
func (g *QuotaGuard) AuthorizeAndCharge(ctx context.Context, apiKey, path string) (Charge, error) {
	return g.Charge(ctx, ChargeRequest{
		APIKey: apiKey,
		Path:   path,
		Source: usage.SourceMiddleware,
	})
}

// ChargeWithStatus charges one unit and records a reported outcome code.
func (g *QuotaGuard) ChargeWithStatus(ctx context.Context, apiKey, path string, status int, source usage.Source) (Charge, error) {
	return g.Charge(ctx, ChargeRequest{
		APIKey: apiKey,
		Path:   path,
		Status: status,
		Source: source,
	})
}

// Charge runs the gate for req.
//
// The pre-check on the record read is a fast path only. The store's
// CompareAndCharge is authoritative: a Conflict means another charge on
// the same key committed first, so the record is re-read and checked
// again. Each conflict implies used grew, so the loop is bounded by the
// remaining quota.
func (g *QuotaGuard) Charge(ctx context.Context, req ChargeRequest) (Charge, error) {
	log := g.logger.With().Str("api_key", account.Mask(req.APIKey)).Logger()

	// 1. Shape check (PURE)
	if !account.ValidateFormat(req.APIKey, g.keyPrefix) {
		g.reject(log, gate.KindInvalidKey)
		return Charge{}, gate.ErrInvalidKey
	}

	secretChecked := false
	for {
		// 2. Lookup (I/O)
		rec, err := g.keys.Get(ctx, req.APIKey)
		if errors.Is(err, ports.ErrNotFound) {
			g.reject(log, gate.KindInvalidKey)
			return Charge{}, gate.ErrInvalidKey
		}
		if err != nil {
			return Charge{}, g.storageError(log, "get", err)
		}

		if req.Secret != "" && !secretChecked {
			if !g.hasher.Compare(rec.SecretHash, req.Secret) {
				g.reject(log, gate.KindUnauthorized)
				return Charge{}, gate.ErrUnauthorized
			}
			secretChecked = true
		}

		// 3. Status and quota pre-check (PURE)
		switch account.Check(rec) {
		case account.ReasonInactive:
			g.reject(log, gate.KindInactiveKey)
			return Charge{}, gate.ErrInactiveKey
		case account.ReasonQuotaExceeded:
			g.reject(log, gate.KindQuotaExceeded)
			return Charge{}, gate.ErrQuotaExceeded
		}

		// 4. Atomic charge (I/O)
		used, err := g.keys.CompareAndCharge(ctx, req.APIKey, rec.Used)
		switch {
		case err == nil:
			return g.record(ctx, log, rec, used, req)
		case errors.Is(err, ports.ErrConflict):
			g.metrics.Conflict()
			log.Debug().Int64("expected_used", rec.Used).Msg("charge conflict, re-reading record")
			continue
		case errors.Is(err, ports.ErrInactive):
			g.reject(log, gate.KindInactiveKey)
			return Charge{}, gate.ErrInactiveKey
		case errors.Is(err, ports.ErrQuotaExceeded):
			g.reject(log, gate.KindQuotaExceeded)
			return Charge{}, gate.ErrQuotaExceeded
		case errors.Is(err, ports.ErrNotFound):
			g.reject(log, gate.KindInvalidKey)
			return Charge{}, gate.ErrInvalidKey
		default:
			return Charge{}, g.storageError(log, "charge", err)
		}
	}
}

// record appends the usage event for a committed charge.
func (g *QuotaGuard) record(ctx context.Context, log zerolog.Logger, rec account.Record, used int64, req ChargeRequest) (Charge, error) {
	event := usage.Event{
		ID:        g.idGen.New(),
		APIKey:    rec.APIKey,
		Path:      req.Path,
		Status:    req.Status,
		Source:    req.Source,
		Timestamp: g.clock.Now(),
	}

	// The charge is final once committed; a caller hanging up must not
	// drop its ledger entry.
	if err := g.ledger.Append(context.WithoutCancel(ctx), event); err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID).
			Int64("used", used).
			Msg("usage event not recorded for committed charge")
		return Charge{}, g.storageError(log, "append", err)
	}

	g.metrics.Charged(rec.Plan, string(req.Source))

	remaining := rec.Quota - used
	if remaining < 0 {
		remaining = 0
	}
	return Charge{
		APIKey:    rec.APIKey,
		Plan:      rec.Plan,
		Used:      used,
		Quota:     rec.Quota,
		Remaining: remaining,
		EventID:   event.ID,
	}, nil
}

func (g *QuotaGuard) reject(log zerolog.Logger, kind gate.Kind) {
	g.metrics.Rejected(string(kind))
	log.Warn().Str("reason", string(kind)).Msg("charge rejected")
}

func (g *QuotaGuard) storageError(log zerolog.Logger, op string, err error) error {
	g.metrics.StorageError(op)
	log.Error().Err(err).Str("op", op).Msg("storage failure")
	return gate.Storage(op, err)
}
