package idx

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports the indexer's Prometheus surface: indexing progress,
// discovered deployments, reorg rollbacks, and the skipped-operation
// counters that distinguish malformed data from hard failures.
type Metrics struct {
	LastIndexedLedger *prometheus.GaugeVec
	OperationsSkipped *prometheus.CounterVec
	DeploymentsTotal  *prometheus.CounterVec
	ReorgsTotal       *prometheus.CounterVec
}

// NewMetrics registers the indexer's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LastIndexedLedger: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idx_last_indexed_ledger",
			Help: "Most recently indexed ledger sequence, per network.",
		}, []string{"network"}),
		OperationsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idx_operations_skipped_total",
			Help: "Operations skipped during extraction, by reason.",
		}, []string{"network", "reason"}),
		DeploymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idx_deployments_total",
			Help: "Contract deployments discovered and upserted.",
		}, []string{"network"}),
		ReorgsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idx_reorgs_total",
			Help: "Suspected reorgs that triggered a checkpoint rollback.",
		}, []string{"network"}),
	}
	reg.MustRegister(m.LastIndexedLedger, m.OperationsSkipped, m.DeploymentsTotal, m.ReorgsTotal)
	return m
}
