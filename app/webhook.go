package app

import (
	"context"
	"sync/atomic"

	"github.com/artpar/quotagate/domain/gate"
	"github.com/artpar/quotagate/domain/plan"
	"github.com/rs/zerolog"
)

// PurchaseConfig selects which product purchases mint keys and on
// which plan.
type PurchaseConfig struct {
	ProductID string
	Plan      string
}

// PurchaseWebhook issues keys for purchase notifications from a
// storefront. The payload is trusted; authenticity is checked
// upstream of this service if at all.
type PurchaseWebhook struct {
	issuer *KeyIssuer
	logger zerolog.Logger

	cfg atomic.Pointer[PurchaseConfig]
}

// NewPurchaseWebhook creates a new purchase webhook handler.
func NewPurchaseWebhook(issuer *KeyIssuer, cfg PurchaseConfig, logger zerolog.Logger) *PurchaseWebhook {
	w := &PurchaseWebhook{issuer: issuer, logger: logger}
	w.UpdateConfig(cfg)
	return w
}

// UpdateConfig swaps the product mapping. Safe to call concurrently.
func (w *PurchaseWebhook) UpdateConfig(cfg PurchaseConfig) {
	if cfg.Plan == "" {
		cfg.Plan = plan.Basic
	}
	w.cfg.Store(&cfg)
}

// HandlePurchase issues a key when form carries the configured product_id.
func (w *PurchaseWebhook) HandlePurchase(ctx context.Context, form map[string]string) (Issued, error) {
	cfg := w.cfg.Load()

	productID := form["product_id"]
	if cfg.ProductID == "" || productID != cfg.ProductID {
		w.logger.Warn().
			Str("product_id", productID).
			Msg("purchase webhook for unknown product")
		return Issued{}, gate.ErrInvalidProduct
	}

	issued, err := w.issuer.IssueVia(ctx, cfg.Plan, ChannelWebhook)
	if err != nil {
		return Issued{}, err
	}

	w.logger.Info().
		Str("product_id", productID).
		Str("plan", cfg.Plan).
		Str("sale_id", form["sale_id"]).
		Msg("purchase webhook issued key")
	return issued, nil
}
