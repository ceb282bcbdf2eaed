// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP Metrics
var (
	// HTTPRequestsTotal tracks requests by route pattern, method and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration tracks handler latency in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"route", "method"},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_rate_limited_requests_total",
			Help: "Total requests rejected with 429",
		},
	)
)

// Ledger Metrics
var (
	// TransactionsCreatedTotal counts committed transactions by type
	TransactionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_created_total",
			Help: "Total transactions created by type (credit/debit)",
		},
		[]string{"type"},
	)

	// SessionsMintedTotal counts session tokens issued to clients
	SessionsMintedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_sessions_minted_total",
			Help: "Total anonymous session tokens issued",
		},
	)

	// StorageErrorsTotal counts failed store round trips by operation
	StorageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_storage_errors_total",
			Help: "Total storage errors by ledger operation",
		},
		[]string{"operation"},
	)
)

// Event feed Metrics
var (
	// EventsPublishedTotal tracks transaction events by outcome
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_published_total",
			Help: "Total transaction.created events published by status",
		},
		[]string{"status"},
	)

	// MirroredRowsTotal tracks spreadsheet mirror writes by outcome
	MirroredRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_mirrored_rows_total",
			Help: "Total transactions mirrored to the spreadsheet by status",
		},
		[]string{"status"},
	)
)
