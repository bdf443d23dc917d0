// Package metrics exposes Prometheus instrumentation for the group session
// client. All collectors are registered against the registry handed to New,
// so embedding applications keep control of the scrape surface.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters shared by the realtime and session layers.
type Metrics struct {
	SocketConnects     prometheus.Counter
	SocketDisconnects  prometheus.Counter
	AckTimeouts        prometheus.Counter
	OptimisticSends    prometheus.Counter
	SendFailures       prometheus.Counter
	MessagesReconciled prometheus.Counter
	SnapshotRefreshes  prometheus.Counter
}

// New creates the metric set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SocketConnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mai_socket_connects_total",
			Help: "Number of realtime connections successfully established.",
		}),
		SocketDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mai_socket_disconnects_total",
			Help: "Number of realtime connection teardowns.",
		}),
		AckTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mai_ack_timeouts_total",
			Help: "Number of acknowledgment requests that exceeded their window.",
		}),
		OptimisticSends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mai_optimistic_sends_total",
			Help: "Number of messages appended optimistically before confirmation.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mai_send_failures_total",
			Help: "Number of message sends that failed or timed out.",
		}),
		MessagesReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mai_messages_reconciled_total",
			Help: "Number of optimistic messages replaced by confirmed copies.",
		}),
		SnapshotRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mai_snapshot_refreshes_total",
			Help: "Number of full group snapshot fetches.",
		}),
	}

	reg.MustRegister(
		m.SocketConnects,
		m.SocketDisconnects,
		m.AckTimeouts,
		m.OptimisticSends,
		m.SendFailures,
		m.MessagesReconciled,
		m.SnapshotRefreshes,
	)
	return m
}

// NewNop returns a metric set backed by a private registry, for callers that
// do not scrape.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
