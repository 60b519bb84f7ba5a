package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns every collector the gateway exports. Each instance registers
// on its own registry so tests can build servers side by side.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SigningOutcomes     *prometheus.CounterVec
	HubSubmissions      *prometheus.CounterVec
	IdempotencyOutcomes *prometheus.CounterVec
	IdempotencyFinalize *prometheus.CounterVec
	AuditWriteFailures  prometheus.Counter
	AuditDropped        prometheus.Counter
	ChannelCache        *prometheus.CounterVec
	RateLimited         prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castgate_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "castgate_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		SigningOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castgate_signing_outcomes_total",
				Help: "Signing requests by action and result code",
			},
			[]string{"action", "code"},
		),
		HubSubmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castgate_hub_submissions_total",
				Help: "Hub submission attempts by hub and result",
			},
			[]string{"hub", "result"},
		),
		IdempotencyOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castgate_idempotency_outcomes_total",
				Help: "Idempotency ledger decisions (claimed, replayed, conflict, waited)",
			},
			[]string{"outcome"},
		),
		IdempotencyFinalize: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castgate_idempotency_finalize_total",
				Help: "Idempotency finalize writes by result",
			},
			[]string{"result"},
		),
		AuditWriteFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "castgate_audit_write_failures_total",
				Help: "Audit log entries that failed to persist",
			},
		),
		AuditDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "castgate_audit_dropped_total",
				Help: "Audit log entries dropped because the queue was full",
			},
		),
		ChannelCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "castgate_channel_cache_total",
				Help: "Channel reference cache lookups by result",
			},
			[]string{"result"},
		),
		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "castgate_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
