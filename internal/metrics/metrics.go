package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync runs by outcome (success, no_messages, nothing_retrieved, error)
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_sync_runs_total",
			Help: "Total number of email sync runs",
		},
		[]string{"outcome"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailpilot_sync_duration_seconds",
			Help:    "Email sync duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	// Emails moved through the sync pipeline, by stage (retrieved, inserted, trimmed)
	SyncEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_sync_emails_total",
			Help: "Total number of emails handled by sync stage",
		},
		[]string{"stage"},
	)

	// Summaries written, by source (summarizer, fallback)
	Summaries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailpilot_summaries_total",
			Help: "Total number of summaries written",
		},
		[]string{"source"},
	)

	EnrichmentDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailpilot_enrichment_dropped_total",
			Help: "Enrichment jobs dropped because the queue was full",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailpilot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"method", "path", "status"},
	)
)

// RecordSync records the outcome and duration of one sync run
func RecordSync(outcome string, duration time.Duration) {
	SyncRuns.WithLabelValues(outcome).Inc()
	SyncDuration.Observe(duration.Seconds())
}

// RecordSyncEmails adds n emails to the given stage counter
func RecordSyncEmails(stage string, n int) {
	if n <= 0 {
		return
	}
	SyncEmails.WithLabelValues(stage).Add(float64(n))
}

// RecordSummary counts one written summary
func RecordSummary(source string) {
	Summaries.WithLabelValues(source).Inc()
}

// RecordHTTPRequest records one handled HTTP request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
