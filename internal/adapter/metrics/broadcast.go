package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics covers operator fan-outs.
type BroadcastMetrics struct {
	MessagesTotal    prometheus.Counter
	WriteErrors      prometheus.Counter
	Evictions        prometheus.Counter
	FanoutDuration   prometheus.Histogram
	FanoutRecipients prometheus.Histogram
}

// NewBroadcastMetrics creates and registers broadcast metrics on the given registry.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		MessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "messages_total",
			Help:      "Total number of operator messages fanned out.",
		}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "write_errors_total",
			Help:      "Per-destination write failures during fan-out.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "evictions_total",
			Help:      "Connections removed after a failed write (only with eviction enabled).",
		}),
		FanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "fanout_duration_seconds",
			Help:      "Time to write one message to every destination in a snapshot.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		FanoutRecipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "fanout_recipients",
			Help:      "Number of destinations in each fan-out snapshot.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}

	reg.MustRegister(m.MessagesTotal, m.WriteErrors, m.Evictions, m.FanoutDuration, m.FanoutRecipients)
	return m
}
