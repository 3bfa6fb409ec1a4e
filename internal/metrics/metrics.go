// Package metrics exposes Prometheus collectors for the collection pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	recordsAcceptedTotal   *prometheus.CounterVec
	duplicatesSkippedTotal *prometheus.CounterVec
	blockEventsTotal       *prometheus.CounterVec
	identityRotationsTotal *prometheus.CounterVec
	keywordsTotal          *prometheus.CounterVec
	uploadsTotal           *prometheus.CounterVec
	uploadQueueDepth       prometheus.Gauge
	backoffFactor          prometheus.Gauge
	activeSessions         prometheus.Gauge
	rateLimitDelaySeconds  prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		recordsAcceptedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubewatch_records_accepted_total",
				Help: "Total candidate records accepted, labeled by keyword.",
			},
			[]string{"keyword"},
		)

		duplicatesSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubewatch_duplicates_skipped_total",
				Help: "Total candidates skipped as duplicates, labeled by keyword.",
			},
			[]string{"keyword"},
		)

		blockEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubewatch_block_events_total",
				Help: "Block classifications observed, labeled by kind.",
			},
			[]string{"kind"},
		)

		identityRotationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubewatch_identity_rotations_total",
				Help: "Identity rotation attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		keywordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubewatch_keywords_total",
				Help: "Keywords processed, labeled by final status.",
			},
			[]string{"status"},
		)

		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tubewatch_uploads_total",
				Help: "Upload queue items drained, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		uploadQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tubewatch_upload_queue_depth",
				Help: "Current depth of the remote upload queue.",
			},
		)

		backoffFactor = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tubewatch_backoff_factor",
				Help: "Current adaptive rate limiter backoff multiplier.",
			},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tubewatch_active_sessions",
				Help: "Number of keyword sessions currently running.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tubewatch_rate_limit_delay_seconds",
				Help:    "Histogram of adaptive rate limiter wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAccepted increments the accepted record counter.
func ObserveAccepted(keyword string) {
	if recordsAcceptedTotal == nil {
		return
	}
	recordsAcceptedTotal.WithLabelValues(keyword).Inc()
}

// ObserveDuplicate increments the duplicate skip counter.
func ObserveDuplicate(keyword string) {
	if duplicatesSkippedTotal == nil {
		return
	}
	duplicatesSkippedTotal.WithLabelValues(keyword).Inc()
}

// ObserveBlockEvent increments the block event counter for the given kind.
func ObserveBlockEvent(kind string) {
	if blockEventsTotal == nil {
		return
	}
	blockEventsTotal.WithLabelValues(kind).Inc()
}

// ObserveRotation increments the rotation counter for the given outcome.
func ObserveRotation(outcome string) {
	if identityRotationsTotal == nil {
		return
	}
	identityRotationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveKeyword increments the keyword counter for the given final status.
func ObserveKeyword(status string) {
	if keywordsTotal == nil {
		return
	}
	keywordsTotal.WithLabelValues(status).Inc()
}

// ObserveUpload increments the upload counter for the given outcome.
func ObserveUpload(outcome string) {
	if uploadsTotal == nil {
		return
	}
	uploadsTotal.WithLabelValues(outcome).Inc()
}

// SetUploadQueueDepth records the current remote queue depth.
func SetUploadQueueDepth(n int64) {
	if uploadQueueDepth == nil {
		return
	}
	uploadQueueDepth.Set(float64(n))
}

// SetBackoffFactor records the current backoff multiplier.
func SetBackoffFactor(f float64) {
	if backoffFactor == nil {
		return
	}
	backoffFactor.Set(f)
}

// IncActiveSessions increments the running session gauge.
func IncActiveSessions() {
	if activeSessions == nil {
		return
	}
	activeSessions.Inc()
}

// DecActiveSessions decrements the running session gauge.
func DecActiveSessions() {
	if activeSessions == nil {
		return
	}
	activeSessions.Dec()
}

// ObserveRateLimitDelay records how long an Acquire call waited.
func ObserveRateLimitDelay(d time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.Observe(d.Seconds())
}
