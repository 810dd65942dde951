package coordinator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus gauges/counters the coordinator exposes on
// /metrics. The gauges are recomputed once per heartbeat-stats sweep tick
// rather than on every mutation; the two counters are incremented on each
// heartbeat and each registration.
type Metrics struct {
	LiveNodes            prometheus.Gauge
	DeadNodes            prometheus.Gauge
	DecommissioningNodes prometheus.Gauge
	StaleNodes           prometheus.Gauge
	Racks                prometheus.Gauge
	HeartbeatsTotal      prometheus.Counter
	RegistrationsTotal   prometheus.Counter
}

// NewMetrics registers a fresh, unconnected metric set (not wired into the
// default registry — callers that want /metrics scraping call Registry()).
func NewMetrics() *Metrics {
	return &Metrics{
		LiveNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datanode_manager_live_nodes", Help: "Datanodes currently classified live.",
		}),
		DeadNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datanode_manager_dead_nodes", Help: "Datanodes currently classified dead.",
		}),
		DecommissioningNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datanode_manager_decommissioning_nodes", Help: "Datanodes currently decommissioning.",
		}),
		StaleNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datanode_manager_stale_nodes", Help: "Datanodes currently stale.",
		}),
		Racks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datanode_manager_racks", Help: "Distinct rack paths currently populated.",
		}),
		HeartbeatsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datanode_manager_heartbeats_total", Help: "Heartbeats processed.",
		}),
		RegistrationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "datanode_manager_registrations_total", Help: "Registrations processed.",
		}),
	}
}

// Registry returns a *prometheus.Registry pre-populated with every
// collector, for cmd/coordinator to mount behind promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.LiveNodes, m.DeadNodes, m.DecommissioningNodes, m.StaleNodes, m.Racks, m.HeartbeatsTotal, m.RegistrationsTotal)
	return reg
}

// Observe recomputes the gauges from current Manager state.
func (m *Metrics) Observe(mgr *Manager) {
	live := mgr.GetDatanodeListForReport(ReportLive)
	dead := mgr.GetDatanodeListForReport(ReportDead)
	m.LiveNodes.Set(float64(len(live)))
	m.DeadNodes.Set(float64(len(dead)))
	m.DecommissioningNodes.Set(float64(len(mgr.GetDecommissioningNodes())))
	m.StaleNodes.Set(float64(mgr.stats.NumStaleNodes()))
	m.Racks.Set(float64(mgr.topology.numRacks()))
}
