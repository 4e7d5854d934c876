// Package metrics exposes the assistant's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector so the set can be registered against a
// private registry in tests.
type Metrics struct {
	Messages       *prometheus.CounterVec
	ToolCalls      *prometheus.CounterVec
	Faults         *prometheus.CounterVec
	RoundsPerTurn  prometheus.Histogram
	CompletionTime prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "messages_total",
			Help:      "Messages handled, by outcome.",
		}, []string{"outcome"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "tool_calls_total",
			Help:      "Tool invocations, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		Faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Name:      "faults_total",
			Help:      "Classified faults surfaced to callers, by kind.",
		}, []string{"kind"}),
		RoundsPerTurn: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "rounds_per_turn",
			Help:      "Model rounds consumed per user message.",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),
		CompletionTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "concierge",
			Name:      "completion_seconds",
			Help:      "Wall time of individual completion requests.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
