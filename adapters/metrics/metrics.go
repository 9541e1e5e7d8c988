// Package metrics provides Prometheus metrics collection for quotagate.
package metrics

import (
	"strings"

	"github.com/artpar/quotagate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quotagate"

// Collector holds all Prometheus metrics for quotagate.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Gate metrics
	Charges          *prometheus.CounterVec
	ChargeRejections *prometheus.CounterVec
	ChargeConflicts  prometheus.Counter
	KeysIssued       *prometheus.CounterVec
	Summaries        *prometheus.CounterVec
	StorageErrors    *prometheus.CounterVec

	// Upstream metrics
	UpstreamDuration *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		Charges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "charges_total",
				Help:      "Total number of committed quota charges",
			},
			[]string{"plan", "source"},
		),
		ChargeRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "charge_rejections_total",
				Help:      "Total number of rejected charge attempts by reason",
			},
			[]string{"reason"},
		),
		ChargeConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "charge_conflicts_total",
				Help:      "Total number of compare-and-charge conflicts that forced a re-read",
			},
		),
		KeysIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "keys_issued_total",
				Help:      "Total number of API keys issued by plan",
			},
			[]string{"plan", "channel"},
		),
		Summaries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "summaries_total",
				Help:      "Total number of usage summary requests by result",
			},
			[]string{"result"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of storage failures by operation",
			},
			[]string{"op"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream request duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "status"},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Total number of upstream errors",
			},
			[]string{"type"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// NormalizePath reduces label cardinality. Per-key path segments under
// /summary/ collapse to a placeholder and long paths are truncated.
func NormalizePath(path string) string {
	if strings.HasPrefix(path, "/summary/") {
		return "/summary/:api_key"
	}
	if len(path) > 50 {
		return path[:50] + "..."
	}
	return path
}

// Charged counts a committed charge.
func (c *Collector) Charged(plan, source string) {
	c.Charges.WithLabelValues(plan, source).Inc()
}

// Rejected counts a rejected charge attempt.
func (c *Collector) Rejected(reason string) {
	c.ChargeRejections.WithLabelValues(reason).Inc()
}

// Conflict counts a compare-and-charge conflict.
func (c *Collector) Conflict() {
	c.ChargeConflicts.Inc()
}

// Issued counts an issued key.
func (c *Collector) Issued(plan, channel string) {
	c.KeysIssued.WithLabelValues(plan, channel).Inc()
}

// Summarized counts a summary request by result.
func (c *Collector) Summarized(result string) {
	c.Summaries.WithLabelValues(result).Inc()
}

// StorageError counts a storage failure.
func (c *Collector) StorageError(op string) {
	c.StorageErrors.WithLabelValues(op).Inc()
}

var _ ports.GateMetrics = (*Collector)(nil)
