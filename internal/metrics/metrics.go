// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocktake_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stocktake_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// OCR worker metrics
	OCRJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocktake_ocr_jobs_total",
			Help: "OCR jobs handled by the worker",
		},
		[]string{"outcome"}, // completed, retried, failed, skipped
	)

	OCRJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stocktake_ocr_job_duration_seconds",
			Help:    "Time from claim to final write of one OCR job",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50},
		},
	)

	OCRBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocktake_ocr_batches_total",
			Help: "Worker batch invocations",
		},
		[]string{"status"}, // ok, error
	)

	ExtractionConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stocktake_extraction_confidence",
			Help:    "Overall confidence of completed extractions",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 85, 90, 95, 100},
		},
	)

	// Duplicate detection metrics
	DuplicateChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocktake_duplicate_checks_total",
			Help: "Duplicate checks by verdict",
		},
		[]string{"result"}, // exact, perceptual, data, none
	)

	DuplicateCheckErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocktake_duplicate_check_errors_total",
			Help: "Lookups that failed open during duplicate checks",
		},
		[]string{"tier"},
	)

	// Session metrics
	SessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocktake_session_transitions_total",
			Help: "Count session status changes",
		},
		[]string{"to"},
	)

	SessionsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stocktake_sessions_expired_total",
			Help: "Sessions cancelled for inactivity",
		},
	)

	ActiveSessionControllers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stocktake_session_controllers_active",
			Help: "Armed inactivity controllers",
		},
	)

	// WebSocket metrics
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stocktake_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	WebsocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocktake_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // sent, received
	)

	// Capture metrics
	UploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stocktake_upload_size_bytes",
			Help:    "Size of captured label images in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 512 * 1024, 1024 * 1024, 4 * 1024 * 1024, 15 * 1024 * 1024},
		},
	)
)
