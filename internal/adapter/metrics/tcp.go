package metrics

import "github.com/prometheus/client_golang/prometheus"

// TCPMetrics covers the accept loop and the per-connection readers.
type TCPMetrics struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected *prometheus.CounterVec
	AcceptErrors        prometheus.Counter
	ActiveConnections   prometheus.Gauge
	LinesReceived       prometheus.Counter
}

// NewTCPMetrics creates and registers TCP metrics on the given registry.
func NewTCPMetrics(reg prometheus.Registerer) *TCPMetrics {
	m := &TCPMetrics{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "connections_accepted_total",
			Help:      "Total number of connections admitted and registered.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "connections_rejected_total",
			Help:      "Connections closed right after accept, by reason.",
		}, []string{"reason"}),
		AcceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "accept_errors_total",
			Help:      "Total number of failed accept calls.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "active_connections",
			Help:      "Number of registered connections whose reader is still running.",
		}),
		LinesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "lines_received_total",
			Help:      "Total number of complete lines read from clients.",
		}),
	}

	reg.MustRegister(m.ConnectionsAccepted, m.ConnectionsRejected, m.AcceptErrors, m.ActiveConnections, m.LinesReceived)
	return m
}
