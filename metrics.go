package access

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver records access events as Prometheus metrics. All series are
// labelled by collaborator name.
type PrometheusObserver struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	results  *prometheus.CounterVec
	batches  *prometheus.CounterVec
	records  *prometheus.CounterVec
	releases *prometheus.CounterVec
}

// NewPrometheusObserver registers the access metrics with reg under namespace.
// Registering twice with the same registry panics.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) *PrometheusObserver {
	factory := promauto.With(reg)

	return &PrometheusObserver{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_attempts_total",
				Help:      "Total number of attempts by outcome kind",
			},
			[]string{"collaborator", "kind"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "access_attempt_duration_seconds",
				Help:      "Attempt duration in seconds, including acquisition and release",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"collaborator"},
		),
		results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_operations_total",
				Help:      "Total number of logical operations by final kind",
			},
			[]string{"collaborator", "kind"},
		),
		batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_stream_batches_total",
				Help:      "Total number of stream batches delivered",
			},
			[]string{"collaborator"},
		),
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_stream_records_total",
				Help:      "Total number of stream records delivered",
			},
			[]string{"collaborator"},
		),
		releases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_handle_releases_total",
				Help:      "Total number of resource handle releases",
			},
			[]string{"collaborator", "result"},
		),
	}
}

// ObserveAttempt implements Observer.
func (o *PrometheusObserver) ObserveAttempt(name string, rec AttemptRecord) {
	o.attempts.WithLabelValues(name, rec.Kind.String()).Inc()
	o.latency.WithLabelValues(name).Observe(rec.Duration.Seconds())
}

// ObserveResult implements Observer.
func (o *PrometheusObserver) ObserveResult(name string, kind Kind, _ int) {
	o.results.WithLabelValues(name, kind.String()).Inc()
}

// ObserveBatch implements Observer.
func (o *PrometheusObserver) ObserveBatch(name string, records int) {
	o.batches.WithLabelValues(name).Inc()
	o.records.WithLabelValues(name).Add(float64(records))
}

// ObserveRelease implements Observer.
func (o *PrometheusObserver) ObserveRelease(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.releases.WithLabelValues(name, result).Inc()
}
