// Package metrics declares the Prometheus instruments shared by the API and
// the worker. They register on the default registry and are served by
// promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ganger",
	Name:      "ledger_entries_total",
	Help:      "Ledger entries committed, by action.",
}, []string{"action"})

var TxRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ganger",
	Name:      "tx_serialization_retries_total",
	Help:      "Transactions retried after a serialization failure.",
})

var TxConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ganger",
	Name:      "tx_conflicts_total",
	Help:      "Transactions abandoned after exhausting serialization retries.",
})

var AuditLogFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ganger",
	Name:      "audit_log_failures_total",
	Help:      "Gang log writes that failed and were discarded.",
})

var NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ganger",
	Name:      "notify_failures_total",
	Help:      "Gang log notifications that could not be delivered.",
})

var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ganger",
	Name:      "cache_lookups_total",
	Help:      "Read cache lookups by result.",
}, []string{"result"})

var CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ganger",
	Name:      "cache_invalidations_total",
	Help:      "Cached views evicted by tag invalidation.",
})

var ReconcileDrift = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ganger",
	Name:      "reconcile_drift_total",
	Help:      "Gangs whose stored totals disagreed with their roster, by field.",
}, []string{"field"})

var ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ganger",
	Name:      "reconcile_run_seconds",
	Help:      "Wall time of a full reconciliation pass.",
	Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
})

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ganger",
	Name:      "http_requests_total",
	Help:      "API requests by method, route pattern and status code.",
}, []string{"method", "route", "code"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ganger",
	Name:      "http_request_seconds",
	Help:      "API request latency by route pattern.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})
