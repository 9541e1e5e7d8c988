// Package http provides the HTTP surface of the gateway.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/quotagate/adapters/metrics"
	"github.com/artpar/quotagate/docs/swagger"
	"github.com/artpar/quotagate/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// BuildVersion is reported by /version and /. Set at startup.
var BuildVersion = "dev"

// ServiceName is reported by /version and /.
const ServiceName = "quotagate"

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
	Service string `json:"service" example:"quotagate"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	store Pinger
}

// NewHealthHandler creates a new health handler. store may be nil.
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// Liveness returns a simple liveness check.
//
//	@Summary		Liveness check
//	@Description	Returns OK if the service is running
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
//	@Router			/health/live [get]
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readiness checks that the store answers.
//
//	@Summary		Readiness check
//	@Description	Checks that the key store is reachable
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	jsonapi.Document
//	@Router			/health/ready [get]
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			jsonapi.WriteError(w, jsonapi.ErrServiceUnavailable("store unreachable: "+err.Error()))
			return
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Version returns the service version.
//
//	@Summary		Get service version
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	VersionResponse
//	@Router			/version [get]
func Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: BuildVersion,
		Service: ServiceName,
	})
}

// InfoResponse describes the service root.
type InfoResponse struct {
	Service string `json:"service" example:"quotagate"`
	Version string `json:"version" example:"1.0.0"`
	Message string `json:"message" example:"API key issuance and usage metering"`
}

// Info describes the service. It is never charged.
//
//	@Summary		Service info
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	InfoResponse
//	@Router			/ [get]
func Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Service: ServiceName,
		Version: BuildVersion,
		Message: "API key issuance and usage metering",
	})
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler // defaults to promhttp.Handler() when Metrics is set
	MetricsPath    string       // defaults to /metrics
	EnableOpenAPI  bool
	Timeout        time.Duration // per-request timeout, defaults to 60s
}

// NewRouter creates the main HTTP router.
func NewRouter(gate *GateHandler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger, metricsPath))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics, metricsPath))
	}

	r.Get("/", Info)
	r.Get("/version", Version)

	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.MetricsHandler != nil {
		r.Handle(metricsPath, cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle(metricsPath, promhttp.Handler())
	}

	if cfg.EnableOpenAPI {
		r.Get("/.well-known/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Write([]byte(swagger.Doc()))
		})

		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/.well-known/openapi.json"),
		))
	}

	r.Post("/register", gate.Register)
	r.Post("/register/{plan}", gate.Register)
	r.Post("/gumroad-webhook", gate.PurchaseWebhook)
	r.Post("/track", gate.Track)
	r.Get("/summary/{api_key}", gate.Summary)

	r.Route("/api", func(api chi.Router) {
		api.Use(gate.QuotaMiddleware)
		api.HandleFunc("/*", gate.Protected)
	})

	return r
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isInternalPath(r.URL.Path, metricsPath) {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := statusLabel(ww.Status())
			path := metrics.NormalizePath(r.URL.Path)

			m.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		})
	}
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if isInternalPath(r.URL.Path, metricsPath) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", metrics.NormalizePath(r.URL.Path)).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

func isInternalPath(path, metricsPath string) bool {
	return strings.HasPrefix(path, "/health") || path == metricsPath ||
		strings.HasPrefix(path, "/swagger") || strings.HasPrefix(path, "/.well-known")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
