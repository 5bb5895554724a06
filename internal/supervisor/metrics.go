package supervisor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports supervisor activity to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Operations       *prometheus.CounterVec
	Duration         *prometheus.HistogramVec
	Retries          *prometheus.CounterVec
	DeadlineExceeded prometheus.Counter
}

// NewMetrics registers the supervisor collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: operation, result (success, failure)
		Operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "estimate_analyzer",
				Subsystem: "pipeline",
				Name:      "operations_total",
				Help:      "Completed supervised operations by result",
			},
			[]string{"operation", "result"},
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "estimate_analyzer",
				Subsystem: "pipeline",
				Name:      "operation_duration_seconds",
				Help:      "Duration of supervised operations in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"operation"},
		),
		Retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "estimate_analyzer",
				Subsystem: "pipeline",
				Name:      "retries_total",
				Help:      "Retry attempts recorded by callers",
			},
			[]string{"operation"},
		),
		DeadlineExceeded: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "estimate_analyzer",
				Subsystem: "pipeline",
				Name:      "deadline_exceeded_total",
				Help:      "Pipeline runs aborted at a runtime checkpoint",
			},
		),
	}
}

func (m *Metrics) observe(operation string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.Operations.WithLabelValues(operation, result).Inc()
	m.Duration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) retry(operation string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) deadlineExceeded() {
	if m == nil {
		return
	}
	m.DeadlineExceeded.Inc()
}
