package lb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkInstance(id, contract, region string, weight int, seq int64) *Instance {
	return newInstance(id, contract, id+":8080", region, weight, seq)
}

func TestRoundRobin_WeightedDistribution(t *testing.T) {
	a := mkInstance("a", "c1", "us", 1, 1)
	b := mkInstance("b", "c1", "us", 3, 2)
	rr := NewRoundRobin()

	counts := map[string]int{}
	const ticks = 40 // 10 * (1+3)
	for i := 0; i < ticks; i++ {
		inst := rr.Select([]*Instance{a, b}, "")
		require.NotNil(t, inst)
		counts[inst.ID]++
	}

	assert.Equal(t, ticks/4, counts["a"])
	assert.Equal(t, 3*ticks/4, counts["b"])
}

func TestRoundRobin_EmptyCandidates(t *testing.T) {
	rr := NewRoundRobin()
	assert.Nil(t, rr.Select(nil, ""))
}

func TestLeastLoaded_PicksMinimalLoadPerWeight(t *testing.T) {
	a := mkInstance("a", "c1", "us", 1, 1)
	b := mkInstance("b", "c1", "us", 2, 2)
	a.activeConnections.Store(2) // load 2/1 = 2
	b.activeConnections.Store(2) // load 2/2 = 1

	ll := NewLeastLoaded()
	got := ll.Select([]*Instance{a, b}, "")
	assert.Equal(t, "b", got.ID)
}

func TestLeastLoaded_TieBreaksOnP95ThenID(t *testing.T) {
	a := mkInstance("b", "c1", "us", 1, 1)
	b := mkInstance("a", "c1", "us", 1, 2)
	// equal load, equal (zero) p95 -> tie-break on lexicographic id
	ll := NewLeastLoaded()
	got := ll.Select([]*Instance{a, b}, "")
	assert.Equal(t, "a", got.ID)

	a.recordLatency(5)
	b.recordLatency(50)
	got = ll.Select([]*Instance{a, b}, "")
	assert.Equal(t, "b", got.ID) // a has lower p95
}

func TestGeographic_PrefersRegionHint(t *testing.T) {
	us := mkInstance("us1", "c1", "us", 1, 1)
	eu := mkInstance("eu1", "c1", "eu", 1, 2)
	geo := NewGeographic()

	got := geo.Select([]*Instance{us, eu}, "eu")
	assert.Equal(t, "eu1", got.ID)
}

func TestGeographic_WidensWhenRegionEmpty(t *testing.T) {
	us := mkInstance("us1", "c1", "us", 1, 1)
	geo := NewGeographic()

	got := geo.Select([]*Instance{us}, "ap")
	assert.Equal(t, "us1", got.ID)
}

func TestHealthyOrDegraded_FiltersUnhealthy(t *testing.T) {
	a := mkInstance("a", "c1", "us", 1, 1)
	b := mkInstance("b", "c1", "us", 1, 2)
	b.health.Store(int32(Unhealthy))

	out := healthyOrDegraded([]*Instance{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}

func TestInstance_PercentileOnEmptyIsZero(t *testing.T) {
	a := mkInstance("a", "c1", "us", 1, 1)
	assert.Equal(t, time.Duration(0), a.P95())
}
