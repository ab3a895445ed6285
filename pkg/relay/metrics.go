package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vaibhav210603/QRcade/pkg/session"
)

type metrics struct {
	sessions    prometheus.GaugeFunc
	connections prometheus.Gauge
	inputs      prometheus.Counter
	created     prometheus.Counter
}

func newMetrics(store *session.Store, reg prometheus.Registerer) *metrics {
	m := &metrics{
		sessions: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "qrcade", Subsystem: "relay", Name: "live_sessions",
			Help: "Number of live (non-expired) sessions.",
		}, func() float64 { return float64(store.Len()) }),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qrcade", Subsystem: "relay", Name: "open_connections",
			Help: "Number of open websocket connections.",
		}),
		inputs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrcade", Subsystem: "relay", Name: "inputs_relayed_total",
			Help: "Total input events accepted and fanned out.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qrcade", Subsystem: "relay", Name: "sessions_created_total",
			Help: "Total sessions created.",
		}),
	}
	reg.MustRegister(m.sessions, m.connections, m.inputs, m.created)
	return m
}
