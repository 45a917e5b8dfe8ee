package ratelimiter

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricDecision     = "ratelimit.decision"
	MetricBackendError = "ratelimit.backend_error"
	MetricLatency      = "ratelimit.latency"
)

// MetricsRecorder receives counters and observations from the Manager.
// Tags are low-cardinality: preset, result, reason, policy.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder is a placeholder that does nothing.
// It ensures we never have to check 'if m.metrics != nil' in our hot path.
type NoOpMetricsRecorder struct{}

func (NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}

// PrometheusRecorder maps the Manager's metrics onto Prometheus collectors.
type PrometheusRecorder struct {
	decisions     *prometheus.CounterVec
	backendErrors *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Admission decisions by preset, result and reason.",
		}, []string{"preset", "result", "reason"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_backend_errors_total",
			Help: "Checks that could not reach the counter store, by preset and applied policy.",
		}, []string{"preset", "policy"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimit_check_duration_seconds",
			Help:    "Duration of a full preset evaluation.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"preset"}),
	}

	for _, c := range []prometheus.Collector{r.decisions, r.backendErrors, r.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) Add(name string, value float64, tags map[string]string) {
	var vec *prometheus.CounterVec
	switch name {
	case MetricDecision:
		vec = r.decisions
	case MetricBackendError:
		vec = r.backendErrors
	default:
		return
	}

	c, err := vec.GetMetricWith(prometheus.Labels(tags))
	if err != nil {
		return
	}
	c.Add(value)
}

func (r *PrometheusRecorder) Observe(name string, value float64, tags map[string]string) {
	if name != MetricLatency {
		return
	}
	o, err := r.latency.GetMetricWith(prometheus.Labels(tags))
	if err != nil {
		return
	}
	o.Observe(value)
}
