package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Report metrics
	ReportsGenerated   *prometheus.CounterVec
	ReportLatency      *prometheus.HistogramVec
	ReportPages        prometheus.Histogram
	ReportPlaceholders prometheus.Counter

	// Attachment metrics
	AttachmentResolutions *prometheus.CounterVec
	AttachmentLatency     prometheus.Histogram
	SubDocumentsDropped   prometheus.Counter

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec
}

// NewMetrics creates all application metrics and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ReportsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Total number of report generation attempts",
		}, []string{"kind", "format", "outcome"}),
		ReportLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_generation_duration_seconds",
			Help:      "Time spent generating a report",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"kind", "format"}),
		ReportPages: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_pages",
			Help:      "Number of pages in generated PDF reports",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
		ReportPlaceholders: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_placeholders_total",
			Help:      "Attachment placeholders rendered in place of content",
		}),

		AttachmentResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachment_resolutions_total",
			Help:      "Attachment resolutions by classification",
		}, []string{"classification"}),
		AttachmentLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attachment_fetch_duration_seconds",
			Help:      "Time spent signing and fetching a single attachment",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		SubDocumentsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subdocuments_dropped_total",
			Help:      "Embedded PDF attachments skipped because they could not be parsed",
		}),

		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),
	}
}

// NewNop returns metrics registered against a private registry.
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), "test")
}
