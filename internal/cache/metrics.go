package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// epsilon guards the improvement-factor division against a zero average
// cached latency.
var epsilon = decimal.New(1, -9) // 1ns

// Metrics is the cache's reported counter snapshot.
type Metrics struct {
	Hits                uint64
	Misses              uint64
	HitRate             decimal.Decimal
	AvgCachedLatency    time.Duration
	AvgUncachedLatency  time.Duration
	ImprovementFactor   decimal.Decimal
}

// Metrics computes the current hit-rate and improvement-factor snapshot.
// Counters are monotonically increasing within the process; this method
// only reads them.
func (c *Cache) Metrics() Metrics {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate decimal.Decimal
	if total := hits + misses; total > 0 {
		hitRate = decimal.NewFromInt(int64(hits)).Div(decimal.NewFromInt(int64(total)))
	}

	avgCached := averageNanos(c.cachedLatencyNanos.Load(), c.cachedSamples.Load())
	avgUncached := averageNanos(c.uncachedLatencyNanos.Load(), c.uncachedSamples.Load())

	cachedDec := decimal.NewFromInt(avgCached.Nanoseconds())
	uncachedDec := decimal.NewFromInt(avgUncached.Nanoseconds())
	denom := decimal.Max(cachedDec, epsilon)

	return Metrics{
		Hits: hits, Misses: misses, HitRate: hitRate,
		AvgCachedLatency: avgCached, AvgUncachedLatency: avgUncached,
		ImprovementFactor: uncachedDec.Div(denom),
	}
}

func averageNanos(totalNanos, samples uint64) time.Duration {
	if samples == 0 {
		return 0
	}
	return time.Duration(totalNanos / samples)
}

// PrometheusCollectors exports the cache's counters and gauges.
type PrometheusCollectors struct {
	HitsTotal         prometheus.Counter
	MissesTotal       prometheus.Counter
	HitRate           prometheus.Gauge
	ImprovementFactor prometheus.Gauge
}

// NewPrometheusCollectors registers the cache's collectors against reg.
func NewPrometheusCollectors(reg prometheus.Registerer) *PrometheusCollectors {
	p := &PrometheusCollectors{
		HitsTotal:         prometheus.NewCounter(prometheus.CounterOpts{Name: "cache_hits_total", Help: "Cache hits."}),
		MissesTotal:       prometheus.NewCounter(prometheus.CounterOpts{Name: "cache_misses_total", Help: "Cache misses."}),
		HitRate:           prometheus.NewGauge(prometheus.GaugeOpts{Name: "cache_hit_rate", Help: "hits / (hits+misses)."}),
		ImprovementFactor: prometheus.NewGauge(prometheus.GaugeOpts{Name: "cache_improvement_factor", Help: "avg_uncached_latency / avg_cached_latency."}),
	}
	reg.MustRegister(p.HitsTotal, p.MissesTotal, p.HitRate, p.ImprovementFactor)
	return p
}

// Observe refreshes the gauges from m and adds any newly observed hits and
// misses to the Prometheus counters. Call with the delta-tracking caller
// responsible for not double-counting across calls; simplest use is a
// single periodic reporter goroutine per Cache.
func (p *PrometheusCollectors) Observe(m Metrics, prevHits, prevMisses uint64) {
	if m.Hits > prevHits {
		p.HitsTotal.Add(float64(m.Hits - prevHits))
	}
	if m.Misses > prevMisses {
		p.MissesTotal.Add(float64(m.Misses - prevMisses))
	}
	hr, _ := m.HitRate.Float64()
	p.HitRate.Set(hr)
	impFactor, _ := m.ImprovementFactor.Float64()
	p.ImprovementFactor.Set(impFactor)
}
