// Package metrics exposes Prometheus instrumentation for batch imports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record outcomes reported by the importer.
const (
	OutcomePersisted   = "persisted"
	OutcomeDropped     = "dropped"
	OutcomeMissingDate = "missing_date"
	OutcomeDuplicate   = "duplicate"
	OutcomeFailed      = "failed"
)

// Batch statuses.
const (
	BatchSucceeded = "succeeded"
	BatchFailed    = "failed"
)

// ImportMetrics groups the import collectors. A nil *ImportMetrics is valid
// and records nothing.
type ImportMetrics struct {
	messages *prometheus.CounterVec
	records  *prometheus.CounterVec
	batches  *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewImportMetrics registers the import collectors with reg.
func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	factory := promauto.With(reg)
	return &ImportMetrics{
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "momo_import_messages_total",
			Help: "Messages read from import sources, by whether they came from the provider sender.",
		}, []string{"sender"}),
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "momo_import_records_total",
			Help: "Provider messages by import outcome.",
		}, []string{"outcome"}),
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "momo_import_batches_total",
			Help: "Completed import batches by status.",
		}, []string{"status"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "momo_import_duration_seconds",
			Help:    "Wall time of one import batch.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}

// MessagesRead counts the messages of a batch split by sender match.
func (m *ImportMetrics) MessagesRead(matched, other int) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("provider").Add(float64(matched))
	m.messages.WithLabelValues("other").Add(float64(other))
}

// RecordOutcome counts one provider message by outcome.
func (m *ImportMetrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(outcome).Inc()
}

// BatchFinished records the status and duration of one batch.
func (m *ImportMetrics) BatchFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())
}
