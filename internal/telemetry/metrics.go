package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across all endpoints.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "lotsync",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// OutboxDrainAttemptsTotal counts drain attempts per provider and outcome
// (succeeded, failed, rate_limited, transient, permanent).
var OutboxDrainAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lotsync",
		Subsystem: "outbox",
		Name:      "drain_attempts_total",
		Help:      "Total marketplace outbox drain attempts by provider and outcome.",
	},
	[]string{"provider", "outcome"},
)

// OutboxDepth reports the number of non-terminal outbox rows per provider
// and status. No code in this repository sets it.
var OutboxDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "lotsync",
		Subsystem: "outbox",
		Name:      "depth",
		Help:      "Number of pending or inflight marketplace outbox rows.",
	},
	[]string{"provider", "status"},
)

// CircuitBreakerOpenTotal counts circuit-breaker opens per provider.
var CircuitBreakerOpenTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lotsync",
		Subsystem: "ratelimit",
		Name:      "circuit_opened_total",
		Help:      "Total number of times the circuit breaker opened, by provider.",
	},
	[]string{"provider"},
)

// CatalogRefreshAttemptsTotal counts catalog refresh attempts by outcome.
var CatalogRefreshAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lotsync",
		Subsystem: "catalog",
		Name:      "refresh_attempts_total",
		Help:      "Total reference-catalog refresh attempts by table and outcome.",
	},
	[]string{"table_name", "outcome"},
)

// WebhookReceivedTotal counts inbound marketplace webhook notifications.
var WebhookReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lotsync",
		Subsystem: "webhook",
		Name:      "received_total",
		Help:      "Total webhook notifications received, by provider and whether deduplicated.",
	},
	[]string{"provider", "deduplicated"},
)

// OpsNotificationsTotal counts ops notifications sent on permanent failures.
var OpsNotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lotsync",
		Subsystem: "opsnotify",
		Name:      "sent_total",
		Help:      "Total operator notifications sent by channel and reason.",
	},
	[]string{"channel", "reason"},
)

// All returns the lotsync-specific collectors for registration alongside the
// Go/process collectors. Only HTTPRequestDuration is updated at runtime (by
// internal/httpserver's metrics middleware); the domain collectors below are
// registered but nothing in this repository increments or sets them.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		OutboxDrainAttemptsTotal,
		OutboxDepth,
		CircuitBreakerOpenTotal,
		CatalogRefreshAttemptsTotal,
		WebhookReceivedTotal,
		OpsNotificationsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors, the shared HTTPRequestDuration metric, and any additional
// service-specific collectors passed as arguments.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
