package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cartOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_operations_total",
			Help: "Total number of cart store operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	cartStaleResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cart_stale_responses_total",
			Help: "Cart responses discarded because a newer request had started",
		},
	)

	cartStaleSnapshots = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cart_stale_snapshots_total",
			Help: "Cart snapshots not delivered because a newer one already was",
		},
	)

	catalogCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_catalog_cache_lookups_total",
			Help: "Catalog cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_active_sessions",
			Help: "Number of sessions currently held in memory",
		},
	)
)

// Operation results recorded in cartOperations.
const (
	resultSuccess    = "success"
	resultUserErrors = "user_errors"
	resultBusy       = "busy"
	resultNetwork    = "network_error"
	resultError      = "error"
)
