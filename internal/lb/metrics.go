package lb

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the load balancer's Prometheus surface: active connections and
// routing throughput per instance, plus latency percentiles.
type Metrics struct {
	ActiveConnections *prometheus.GaugeVec
	RoutesTotal       *prometheus.CounterVec
	LatencyP95Seconds *prometheus.GaugeVec
	NoHealthyTotal    prometheus.Counter
}

// NewMetrics registers the load balancer's collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry across test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lb_active_connections",
			Help: "Outstanding routed requests per instance.",
		}, []string{"instance_id", "contract_id"}),
		RoutesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lb_routes_total",
			Help: "Routes served per instance and algorithm.",
		}, []string{"instance_id", "contract_id", "algorithm"}),
		LatencyP95Seconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lb_latency_p95_seconds",
			Help: "Observed p95 response latency per instance.",
		}, []string{"instance_id", "contract_id"}),
		NoHealthyTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lb_no_healthy_instances_total",
			Help: "Routes rejected for lack of a healthy instance.",
		}),
	}
	reg.MustRegister(m.ActiveConnections, m.RoutesTotal, m.LatencyP95Seconds, m.NoHealthyTotal)
	return m
}

// Observe refreshes instance-level gauges from a Service snapshot. Call
// periodically (e.g. alongside the health loop's tick) or on demand from a
// /metrics scrape handler.
func (m *Metrics) Observe(snapshots []Snapshot) {
	for _, s := range snapshots {
		m.ActiveConnections.WithLabelValues(s.ID, s.ContractID).Set(float64(s.ActiveConnections))
		m.LatencyP95Seconds.WithLabelValues(s.ID, s.ContractID).Set(s.P95.Seconds())
	}
}

// RecordRoute increments the per-instance route counter.
func (m *Metrics) RecordRoute(instanceID, contractID, algorithm string) {
	m.RoutesTotal.WithLabelValues(instanceID, contractID, algorithm).Inc()
}

// RecordNoHealthy increments the no-healthy-instance rejection counter.
func (m *Metrics) RecordNoHealthy() {
	m.NoHealthyTotal.Inc()
}
