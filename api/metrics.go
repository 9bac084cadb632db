package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textline_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// OCR processing metrics
	ocrRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textline_ocr_requests_total",
			Help: "Total number of OCR requests",
		},
		[]string{"status"}, // success, empty, rejected, timeout, canceled, error
	)

	ocrProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "textline_ocr_processing_duration_seconds",
			Help:    "Recognition duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
	)

	ocrDetections = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "textline_ocr_detections",
			Help:    "Number of word detections per image",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	ocrLines = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "textline_ocr_lines",
			Help:    "Number of reconstructed lines per image",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "textline_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024},
		},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textline_cache_lookups_total",
			Help: "Result cache lookups",
		},
		[]string{"result"}, // hit, miss, error
	)
)
