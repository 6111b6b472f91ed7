package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	// Category updates by category and result (ok, invalid_category, invalid_facts, error)
	Updates *prometheus.CounterVec

	// End-to-end update latency including the store round trip
	UpdateLatency prometheus.Histogram

	// Store latency by operation
	StoreLatency *prometheus.HistogramVec

	// Scores served to readers
	Scores prometheus.Histogram

	PublishFailures prometheus.Counter
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Updates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustscore_verification_updates_total",
			Help: "Total category updates by category and result",
		}, []string{"category", "result"}),

		UpdateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustscore_verification_update_duration_seconds",
			Help:    "Duration of category updates including persistence",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		StoreLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trustscore_verification_store_duration_seconds",
			Help:    "Duration of record store operations by operation",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"op"}), // op: "find", "find_many", "update"

		Scores: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustscore_verification_score",
			Help:    "Distribution of trust scores served to readers",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),

		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "trustscore_verification_publish_failures_total",
			Help: "Verification events that could not be published",
		}),
	}
}

// IncrementUpdate records a category update outcome.
func (m *Metrics) IncrementUpdate(category, result string) {
	if m != nil {
		m.Updates.WithLabelValues(category, result).Inc()
	}
}

// ObserveUpdateLatency records the duration of a successful update.
func (m *Metrics) ObserveUpdateLatency(d time.Duration) {
	if m != nil {
		m.UpdateLatency.Observe(d.Seconds())
	}
}

// ObserveStoreLatency records the duration of a store operation.
func (m *Metrics) ObserveStoreLatency(op string, d time.Duration) {
	if m != nil {
		m.StoreLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}

// ObserveScore records a score served to a reader.
func (m *Metrics) ObserveScore(score int) {
	if m != nil {
		m.Scores.Observe(float64(score))
	}
}

// IncrementPublishFailure counts a dropped event.
func (m *Metrics) IncrementPublishFailure() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}
