package app

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/quotagate/domain/account"
	"github.com/artpar/quotagate/domain/gate"
	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/ports"
	"github.com/rs/zerolog"
)

// Summary results, used as a metrics label.
const (
	summaryOK           = "ok"
	summaryNotFound     = "not_found"
	summaryUnauthorized = "unauthorized"
	summaryError        = "error"
)

// SummaryReporter reports per-key usage to holders of the key's secret.
type SummaryReporter struct {
	keys    ports.KeyStore
	ledger  ports.UsageLedger
	hasher  ports.Hasher
	metrics ports.GateMetrics
	logger  zerolog.Logger

	keyPrefix string
}

// SummaryDeps contains dependencies for SummaryReporter.
type SummaryDeps struct {
	Keys    ports.KeyStore
	Ledger  ports.UsageLedger
	Hasher  ports.Hasher
	Metrics ports.GateMetrics // optional
	Logger  zerolog.Logger
}

// Summary is a usage report for one key.
type Summary struct {
	APIKey         string
	Plan           string
	Active         bool
	Used           int64
	Quota          int64
	Remaining      int64
	TotalRequests  int64
	ErrorCount     int64
	FirstRequestAt time.Time // zero when no events
	LastRequestAt  time.Time
}

// NewSummaryReporter creates a new summary reporter. Keys not matching
// keyPrefix are reported as not found without a store lookup.
func NewSummaryReporter(deps SummaryDeps, keyPrefix string) *SummaryReporter {
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	return &SummaryReporter{
		keys:      deps.Keys,
		ledger:    deps.Ledger,
		hasher:    deps.Hasher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		keyPrefix: keyPrefix,
	}
}

// Summarize returns the usage summary for apiKey if secret matches.
func (r *SummaryReporter) Summarize(ctx context.Context, apiKey, secret string) (Summary, error) {
	if !account.ValidateFormat(apiKey, r.keyPrefix) {
		r.metrics.Summarized(summaryNotFound)
		return Summary{}, gate.ErrNotFound
	}

	rec, err := r.keys.Get(ctx, apiKey)
	if errors.Is(err, ports.ErrNotFound) {
		r.metrics.Summarized(summaryNotFound)
		return Summary{}, gate.ErrNotFound
	}
	if err != nil {
		return Summary{}, r.storageError(apiKey, "get", err)
	}

	if !r.hasher.Compare(rec.SecretHash, secret) {
		r.metrics.Summarized(summaryUnauthorized)
		r.logger.Warn().Str("api_key", account.Mask(apiKey)).Msg("summary denied: secret mismatch")
		return Summary{}, gate.ErrUnauthorized
	}

	events, err := r.ledger.Query(ctx, apiKey)
	if err != nil {
		return Summary{}, r.storageError(apiKey, "query", err)
	}
	totals := usage.Aggregate(events)

	r.metrics.Summarized(summaryOK)
	return Summary{
		APIKey:         rec.APIKey,
		Plan:           rec.Plan,
		Active:         rec.Active,
		Used:           rec.Used,
		Quota:          rec.Quota,
		Remaining:      account.Remaining(rec),
		TotalRequests:  totals.Requests,
		ErrorCount:     totals.Errors,
		FirstRequestAt: totals.FirstAt,
		LastRequestAt:  totals.LastAt,
	}, nil
}

func (r *SummaryReporter) storageError(apiKey, op string, err error) error {
	r.metrics.Summarized(summaryError)
	r.metrics.StorageError(op)
	r.logger.Error().Err(err).Str("api_key", account.Mask(apiKey)).Str("op", op).Msg("summary failed")
	return gate.Storage(op, err)
}
