package actor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the runtime: per-kind/method call latency and
// outcomes, concurrent calls, and live activation counts.
type Metrics struct {
	calls       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inflight    *prometheus.GaugeVec
	activations *prometheus.GaugeVec
}

// NewMetrics registers the runtime collectors on reg (use
// prometheus.DefaultRegisterer in production).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakemesh",
			Subsystem: "actor",
			Name:      "calls_total",
			Help:      "Entity method calls by kind, method and outcome.",
		}, []string{"kind", "method", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stakemesh",
			Subsystem: "actor",
			Name:      "call_duration_seconds",
			Help:      "Entity method latency by kind and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "method"}),
		inflight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stakemesh",
			Subsystem: "actor",
			Name:      "calls_inflight",
			Help:      "Entity method calls currently executing by kind.",
		}, []string{"kind"}),
		activations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "stakemesh",
			Subsystem: "actor",
			Name:      "activations",
			Help:      "Live entity activations by kind.",
		}, []string{"kind"}),
	}
}

// Filter returns the call filter that feeds the collectors.
func (m *Metrics) Filter() Filter {
	return func(next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, info *CallInfo, args []byte) (any, error) {
			kind := string(info.Kind)
			m.inflight.WithLabelValues(kind).Inc()
			start := time.Now()

			value, err := next(ctx, info, args)

			m.inflight.WithLabelValues(kind).Dec()
			m.duration.WithLabelValues(kind, info.Method).Observe(time.Since(start).Seconds())
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			m.calls.WithLabelValues(kind, info.Method, outcome).Inc()
			return value, err
		}
	}
}

func (m *Metrics) activationUp(kind Kind) {
	if m != nil {
		m.activations.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) activationDown(kind Kind) {
	if m != nil {
		m.activations.WithLabelValues(string(kind)).Dec()
	}
}
