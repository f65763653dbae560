// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Refresh metrics
	RefreshesStarted   *prometheus.CounterVec
	RefreshesCompleted *prometheus.CounterVec
	RefreshesFailed    *prometheus.CounterVec
	RefreshesCoalesced *prometheus.CounterVec
	RefreshInFlight    *prometheus.GaugeVec
	RefreshDuration    *prometheus.HistogramVec
	ItemFetchDegraded  *prometheus.CounterVec

	// Mutation metrics
	MutationsTotal     *prometheus.CounterVec
	ValidationRejects  *prometheus.CounterVec
	OptimisticPatches  prometheus.Counter
	ReconcileCorrected prometheus.Counter

	// Cache metrics
	CacheExpiries   *prometheus.CounterVec
	CacheCorruption *prometheus.CounterVec

	// Session metrics
	LoginsTotal     *prometheus.CounterVec
	SessionRestores *prometheus.CounterVec
	VerifyFailures  prometheus.Counter

	// Notification metrics
	NotificationsPushed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_ledger_client"
	}

	return &Metrics{
		RefreshesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "refreshes_started_total",
			Help:      "Total number of collection refreshes started",
		}, []string{"collection"}),
		RefreshesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "refreshes_completed_total",
			Help:      "Total number of collection refreshes completed successfully",
		}, []string{"collection"}),
		RefreshesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "refreshes_failed_total",
			Help:      "Total number of collection refreshes that failed wholesale",
		}, []string{"collection"}),
		RefreshesCoalesced: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "refreshes_coalesced_total",
			Help:      "Total number of refresh triggers collapsed into an in-flight refresh",
		}, []string{"collection"}),
		RefreshInFlight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "refresh_in_flight",
			Help:      "Whether a refresh is currently in flight per collection",
		}, []string{"collection"}),
		RefreshDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of collection refreshes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection"}),
		ItemFetchDegraded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "item_fetch_degraded_total",
			Help:      "Total number of per-item fetches degraded to zero",
		}, []string{"collection"}),

		MutationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "mutations_total",
			Help:      "Total number of mutating operations by operation and result",
		}, []string{"operation", "result"}),
		ValidationRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "validation_rejects_total",
			Help:      "Total number of mutations rejected before any remote call",
		}, []string{"operation", "reason"}),
		OptimisticPatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "optimistic_patches_total",
			Help:      "Total number of optimistic balance patches applied",
		}),
		ReconcileCorrected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "reconcile_corrections_total",
			Help:      "Total number of reconciling refreshes that changed an optimistic value",
		}),

		CacheExpiries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "expiries_total",
			Help:      "Total number of cache entries discarded as stale",
		}, []string{"collection"}),
		CacheCorruption: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "corruption_total",
			Help:      "Total number of cache entries purged as corrupt",
		}, []string{"collection"}),

		LoginsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Total number of login attempts by mode and result",
		}, []string{"mode", "result"}),
		SessionRestores: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "restores_total",
			Help:      "Total number of session restorations by result",
		}, []string{"result"}),
		VerifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "verify_failures_total",
			Help:      "Total number of periodic verification failures",
		}),

		NotificationsPushed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "pushed_total",
			Help:      "Total number of notifications pushed by severity",
		}, []string{"severity"}),
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
