// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the log-and-subscription engine:
// - Store operation latency (badger)
// - Append / poll / commit throughput
// - Change-feed publishing
// - Compaction progress
// - HTTP endpoint latency and status codes

var (
	// Store Metrics
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventledger_store_op_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	StoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventledger_store_op_errors_total",
			Help: "Total number of store operation failures",
		},
		[]string{"op"},
	)

	// Append Path Metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventledger_events_published_total",
			Help: "Total number of events appended to the log",
		},
		[]string{"stream"},
	)

	PublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventledger_publish_duration_seconds",
			Help:    "Duration of publish batches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Poll/Commit Metrics
	EventsPolled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventledger_events_polled_total",
			Help: "Total number of events returned by poll",
		},
		[]string{"stream"},
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eventledger_poll_duration_seconds",
			Help:    "Duration of poll requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	OffsetCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventledger_offset_commits_total",
			Help: "Total number of per-partition offset commits",
		},
		[]string{"stream"},
	)

	// Change-Feed Metrics
	ChangeFeedPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventledger_changefeed_published_total",
			Help: "Total number of change records published to the feed",
		},
	)

	ChangeFeedDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventledger_changefeed_dropped_total",
			Help: "Total number of change records dropped (breaker open or publish failure)",
		},
	)

	// Compaction Metrics
	CompactionApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventledger_compaction_applied_total",
			Help: "Total number of compacted rows written",
		},
		[]string{"stream"},
	)

	CompactionSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventledger_compaction_skipped_total",
			Help: "Total number of change records skipped by the monotonic guard",
		},
		[]string{"stream"},
	)

	CompactionMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventledger_compaction_malformed_total",
			Help: "Total number of malformed change records logged and skipped",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventledger_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventledger_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// ObserveStoreOp records one store operation with its outcome.
func ObserveStoreOp(op string, start time.Time, err error) {
	StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreOpErrors.WithLabelValues(op).Inc()
	}
}

// ObserveAPIRequest records one HTTP request.
func ObserveAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
