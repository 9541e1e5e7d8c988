package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/quotagate/adapters/metrics"
	"github.com/artpar/quotagate/app"
	"github.com/artpar/quotagate/domain/gate"
	"github.com/artpar/quotagate/domain/plan"
	"github.com/artpar/quotagate/domain/usage"
	"github.com/artpar/quotagate/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	headerAPIKey         = "X-API-Key"
	headerAPISecret      = "X-API-Secret"
	headerQuotaUsed      = "X-Quota-Used"
	headerQuotaRemaining = "X-Quota-Remaining"

	maxBodyBytes = 10 << 20 // 10MB
)

// IssuedResponse is returned when a key is minted. The secret is
// shown only here.
type IssuedResponse struct {
	Message string `json:"message,omitempty" example:"API key created"`
	APIKey  string `json:"api_key" example:"qk_0123456789abcdef0123456789abcdef"`
	Secret  string `json:"secret" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822c"`
	Plan    string `json:"plan" example:"basic"`
	Quota   int64  `json:"quota" example:"1000"`
}

// TrackRequest reports the outcome of a call made with a key.
// Status may be a number or a label such as "ok" or "error".
type TrackRequest struct {
	APIKey string `json:"api_key" example:"qk_0123456789abcdef0123456789abcdef"`
	Status any    `json:"status" swaggertype:"string" example:"ok"`
}

// ChargeResponse reports counters after a charge.
type ChargeResponse struct {
	Message   string `json:"message" example:"Usage recorded"`
	Used      int64  `json:"used" example:"42"`
	Remaining int64  `json:"remaining" example:"958"`
	Path      string `json:"path,omitempty" example:"/api/data"`
}

// SummaryResponse is the usage report for one key.
type SummaryResponse struct {
	APIKey         string     `json:"api_key"`
	Plan           string     `json:"plan" example:"basic"`
	Active         bool       `json:"active" example:"true"`
	Used           int64      `json:"used" example:"42"`
	Quota          int64      `json:"quota" example:"1000"`
	Remaining      int64      `json:"remaining" example:"958"`
	TotalRequests  int64      `json:"total_requests" example:"42"`
	ErrorCount     int64      `json:"error_count" example:"3"`
	FirstRequestAt *time.Time `json:"first_request_at,omitempty"`
	LastRequestAt  *time.Time `json:"last_request_at,omitempty"`
}

// GateHandler exposes issuance, charging and reporting over HTTP.
type GateHandler struct {
	guard    *app.QuotaGuard
	issuer   *app.KeyIssuer
	reporter *app.SummaryReporter
	webhook  *app.PurchaseWebhook
	upstream *UpstreamClient // nil: protected routes echo the charge
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// GateDeps contains dependencies for GateHandler.
type GateDeps struct {
	Guard    *app.QuotaGuard
	Issuer   *app.KeyIssuer
	Reporter *app.SummaryReporter
	Webhook  *app.PurchaseWebhook
	Upstream *UpstreamClient     // optional
	Metrics  *metrics.Collector // optional
	Logger   zerolog.Logger
}

// NewGateHandler creates a new gate handler.
func NewGateHandler(deps GateDeps) *GateHandler {
	return &GateHandler{
		guard:    deps.Guard,
		issuer:   deps.Issuer,
		reporter: deps.Reporter,
		webhook:  deps.Webhook,
		upstream: deps.Upstream,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// Register issues a new key on the path's plan, or basic when absent.
//
//	@Summary		Issue an API key
//	@Tags			Keys
//	@Produce		json
//	@Param			plan	path		string	false	"Plan id (basic, premium)"
//	@Success		201		{object}	IssuedResponse
//	@Failure		400		{object}	jsonapi.Document	"Unknown plan"
//	@Failure		500		{object}	jsonapi.Document	"Storage failure"
//	@Router			/register [post]
//	@Router			/register/{plan} [post]
func (h *GateHandler) Register(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "plan")
	if planID == "" {
		planID = plan.Basic
	}

	issued, err := h.issuer.Issue(r.Context(), planID)
	if err != nil {
		writeGateError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, IssuedResponse{
		APIKey: issued.Record.APIKey,
		Secret: issued.Secret,
		Plan:   issued.Record.Plan,
		Quota:  issued.Record.Quota,
	})
}

// PurchaseWebhook issues a key for a storefront purchase notification.
//
//	@Summary		Purchase webhook
//	@Description	Issues a key when the form's product_id matches the configured product
//	@Tags			Keys
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			product_id	formData	string	true	"Purchased product"
//	@Success		200			{object}	IssuedResponse
//	@Failure		400			{object}	jsonapi.Document	"Unknown product or malformed form"
//	@Router			/gumroad-webhook [post]
func (h *GateHandler) PurchaseWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeGateError(w, gate.Malformed("unparsable form body", err))
		return
	}

	form := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			form[k] = v[0]
		}
	}

	issued, err := h.webhook.HandlePurchase(r.Context(), form)
	if err != nil {
		writeGateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, IssuedResponse{
		Message: "API key created",
		APIKey:  issued.Record.APIKey,
		Secret:  issued.Secret,
		Plan:    issued.Record.Plan,
		Quota:   issued.Record.Quota,
	})
}

// Track charges one unit and records a reported outcome.
//
//	@Summary		Track usage
//	@Tags			Usage
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TrackRequest	true	"Key and outcome"
//	@Success		200		{object}	ChargeResponse
//	@Failure		400		{object}	jsonapi.Document	"Malformed body"
//	@Failure		403		{object}	jsonapi.Document	"Invalid or inactive key"
//	@Failure		429		{object}	jsonapi.Document	"Quota exceeded"
//	@Router			/track [post]
func (h *GateHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeGateError(w, gate.Malformed("request body is not valid JSON", err))
		return
	}
	if req.APIKey == "" {
		writeGateError(w, gate.Malformed("api_key is required", nil))
		return
	}

	charge, err := h.guard.ChargeWithStatus(r.Context(), req.APIKey, r.URL.Path, usage.ParseStatus(req.Status), usage.SourceTrack)
	if err != nil {
		writeGateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChargeResponse{
		Message:   "Usage recorded",
		Used:      charge.Used,
		Remaining: charge.Remaining,
	})
}

// Summary reports usage for a key to the holder of its secret.
//
//	@Summary		Usage summary
//	@Tags			Usage
//	@Produce		json
//	@Param			api_key			path		string	true	"API key"
//	@Param			X-API-Secret	header		string	true	"Secret issued with the key"
//	@Success		200				{object}	SummaryResponse
//	@Failure		401				{object}	jsonapi.Document	"Wrong secret"
//	@Failure		403				{object}	jsonapi.Document	"Unknown key"
//	@Router			/summary/{api_key} [get]
func (h *GateHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.reporter.Summarize(r.Context(), chi.URLParam(r, "api_key"), r.Header.Get(headerAPISecret))
	if err != nil {
		writeGateError(w, err)
		return
	}

	resp := SummaryResponse{
		APIKey:        sum.APIKey,
		Plan:          sum.Plan,
		Active:        sum.Active,
		Used:          sum.Used,
		Quota:         sum.Quota,
		Remaining:     sum.Remaining,
		TotalRequests: sum.TotalRequests,
		ErrorCount:    sum.ErrorCount,
	}
	if !sum.FirstRequestAt.IsZero() {
		first, last := sum.FirstRequestAt, sum.LastRequestAt
		resp.FirstRequestAt = &first
		resp.LastRequestAt = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

type chargeKey struct{}

// ChargeFromContext returns the charge made by QuotaMiddleware.
func ChargeFromContext(ctx context.Context) (app.Charge, bool) {
	c, ok := ctx.Value(chargeKey{}).(app.Charge)
	return c, ok
}

// QuotaMiddleware charges one unit per request before the wrapped
// handler runs. Rejected requests never reach it.
func (h *GateHandler) QuotaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		charge, err := h.guard.Charge(r.Context(), app.ChargeRequest{
			APIKey: extractAPIKey(r),
			Secret: r.Header.Get(headerAPISecret),
			Path:   r.URL.Path,
			Source: usage.SourceMiddleware,
		})
		if err != nil {
			writeGateError(w, err)
			return
		}

		w.Header().Set(headerQuotaUsed, strconv.FormatInt(charge.Used, 10))
		w.Header().Set(headerQuotaRemaining, strconv.FormatInt(charge.Remaining, 10))

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), chargeKey{}, charge)))
	})
}

// Protected serves charged requests under /api. With an upstream
// configured the request is forwarded; otherwise the charge is echoed.
//
//	@Summary		Metered API
//	@Description	Charges one unit against the key, then forwards to the upstream
//	@Tags			Proxy
//	@Produce		json
//	@Param			X-API-Key		header	string	true	"API key"
//	@Param			X-API-Secret	header	string	false	"Secret, checked when present"
//	@Success		200				{object}	ChargeResponse
//	@Failure		401				{object}	jsonapi.Document	"Wrong secret"
//	@Failure		403				{object}	jsonapi.Document	"Invalid or inactive key"
//	@Failure		429				{object}	jsonapi.Document	"Quota exceeded"
//	@Failure		502				{object}	jsonapi.Document	"Upstream error"
//	@Security		ApiKeyAuth
//	@Router			/api/{path} [get]
//	@Router			/api/{path} [post]
func (h *GateHandler) Protected(w http.ResponseWriter, r *http.Request) {
	charge, _ := ChargeFromContext(r.Context())

	if h.upstream == nil {
		writeJSON(w, http.StatusOK, ChargeResponse{
			Message:   "Request authorized",
			Used:      charge.Used,
			Remaining: charge.Remaining,
			Path:      r.URL.Path,
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeGateError(w, gate.Malformed("failed to read request body", err))
		return
	}

	resp, err := h.upstream.Forward(r.Context(), r, body)
	if err != nil {
		h.upstreamFailed(r, err)
		jsonapi.WriteError(w, jsonapi.ErrBadGateway(""))
		return
	}
	if h.metrics != nil {
		h.metrics.UpstreamDuration.WithLabelValues(r.Method, statusLabel(resp.Status)).
			Observe(float64(resp.LatencyMs) / 1000)
	}

	for k, v := range resp.Headers {
		if k == headerQuotaUsed || k == headerQuotaRemaining {
			continue
		}
		w.Header()[k] = v
	}
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil {
		h.logger.Error().Err(err).Msg("failed to write response body")
	}
}

func (h *GateHandler) upstreamFailed(r *http.Request, err error) {
	kind := "connection"
	if errors.Is(err, context.DeadlineExceeded) {
		kind = "timeout"
	}
	if h.metrics != nil {
		h.metrics.UpstreamErrors.WithLabelValues(kind).Inc()
	}
	h.logger.Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("type", kind).
		Msg("upstream error")
}

// extractAPIKey extracts the API key from the request.
// Supports: X-API-Key header, Authorization header (Bearer token).
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get(headerAPIKey); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// writeGateError writes a JSON:API error for err. A rejected secret
// points at the header it came from.
func writeGateError(w http.ResponseWriter, err error) {
	ge := gate.As(err)
	b := jsonapi.NewError(ge.Status, string(ge.Kind)).Detail(ge.Message)
	if ge.Kind == gate.KindUnauthorized {
		b.Header(headerAPISecret)
	}
	jsonapi.WriteError(w, b.Build())
}
