/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry holds Prometheus metrics, tracing setup, and the HTTP
// middleware that feeds them.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Guide generation metrics.
var (
	GuideBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zapper_guide_build_duration_seconds",
		Help:    "Time to generate one channel-day schedule.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})

	GuideProgramsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zapper_guide_programs_total",
		Help: "Programs emitted per channel across all generations.",
	}, []string{"channel"})

	GuideGapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zapper_guide_gaps_total",
		Help: "Slots left empty because nothing was eligible or nothing fit.",
	}, []string{"channel"})

	GuideErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zapper_guide_errors_total",
		Help: "Channel generations that failed, by reason.",
	}, []string{"channel", "reason"})
)

// Refresher loop metrics.
var (
	RefreshTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zapper_refresh_ticks_total",
		Help: "Background refresher ticks.",
	})

	RefreshErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zapper_refresh_errors_total",
		Help: "Refresher failures, by stage.",
	}, []string{"stage"})
)

// Redis cache metrics.
var (
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zapper_cache_hits_total",
		Help: "Cache hits by entity.",
	}, []string{"entity"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zapper_cache_misses_total",
		Help: "Cache misses by entity.",
	}, []string{"entity"})
)

// HTTP API metrics.
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zapper_api_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zapper_api_requests_total",
		Help: "HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zapper_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zapper_api_websocket_connections",
		Help: "Open websocket connections.",
	})
)

// Leader election metrics.
var (
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zapper_leader_election_status",
		Help: "1 when this instance holds the refresher lease.",
	}, []string{"instance"})

	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zapper_leader_election_changes_total",
		Help: "Leadership transitions, by direction.",
	}, []string{"instance", "transition"})
)

// Database metrics, fed by the gorm callbacks.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zapper_database_query_duration_seconds",
		Help:    "Database operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zapper_database_errors_total",
		Help: "Database operation failures.",
	}, []string{"operation", "kind"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zapper_database_connections_active",
		Help: "Open database connections.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
