// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_requests_total",
			Help: "Quote submissions by intake outcome (queued, in_progress, already_sent, invalid, rejected)",
		},
		[]string{"outcome"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quote_queue_depth",
			Help: "Number of jobs waiting in the background queue",
		},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_jobs_processed_total",
			Help: "Background jobs processed by final status",
		},
		[]string{"status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quote_job_duration_seconds",
			Help:    "Duration of background job processing in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_emails_total",
			Help: "Email sends by recipient role and status",
		},
		[]string{"role", "status"},
	)

	PDFRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quote_pdf_render_duration_seconds",
			Help:    "Duration of headless PDF rendering in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	DownloadsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_downloads_total",
			Help: "Download attempts by HTTP status",
		},
		[]string{"status"},
	)
)
