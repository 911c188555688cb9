package metrics

import "github.com/prometheus/client_golang/prometheus"

// CommentMetrics holds Prometheus metrics for the comment graph store.
type CommentMetrics struct {
	Mutations       *prometheus.CounterVec
	PersistDuration *prometheus.HistogramVec
	Hydrations      *prometheus.CounterVec
}

// NewCommentMetrics creates and registers comment metrics on the given registry.
func NewCommentMetrics(reg prometheus.Registerer) *CommentMetrics {
	m := &CommentMetrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "comments",
			Name:      "mutations_total",
			Help:      "Total number of comment graph mutations, by operation and result.",
		}, []string{"operation", "result"}),
		PersistDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "comments",
			Name:      "persist_duration_seconds",
			Help:      "Duration of synchronous persistence calls in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"operation"}),
		Hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "comments",
			Name:      "hydrations_total",
			Help:      "Total number of event graphs loaded from the document store, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Mutations, m.PersistDuration, m.Hydrations)
	return m
}
