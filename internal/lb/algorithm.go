package lb

import (
	"sort"
	"sync/atomic"
)

// AlgorithmName is the wire name of a routing algorithm.
type AlgorithmName string

const (
	AlgorithmRoundRobin  AlgorithmName = "round_robin"
	AlgorithmLeastLoaded AlgorithmName = "least_loaded"
	AlgorithmGeographic  AlgorithmName = "geographic"
)

// Algorithm selects one instance from a candidate set. Implementations
// must be safe for concurrent Select calls; the active algorithm is
// referenced through an atomic pointer so readers never acquire a lock.
type Algorithm interface {
	Name() AlgorithmName
	// Select picks an instance from candidates (already filtered to
	// Healthy|Degraded). regionHint is only consulted by Geographic.
	Select(candidates []*Instance, regionHint string) *Instance
}

// healthyOrDegraded filters out Unhealthy instances. Callers operate on
// a stable snapshot slice, so this never blocks a route.
func healthyOrDegraded(all []*Instance) []*Instance {
	out := make([]*Instance, 0, len(all))
	for _, inst := range all {
		if inst.Health() != Unhealthy {
			out = append(out, inst)
		}
	}
	return out
}

// --- RoundRobin -------------------------------------------------------

// RoundRobin replicates each instance Weight times in a fixed rotation so
// that, over any window of ΣWeight ticks, instance i is chosen exactly
// Weight_i times. The rotation is rebuilt whenever the candidate set
// changes shape; registration order breaks ties between equal weights.
type RoundRobin struct {
	cursor atomic.Uint64
}

// NewRoundRobin returns a RoundRobin algorithm with a fresh cursor.
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (r *RoundRobin) Name() AlgorithmName { return AlgorithmRoundRobin }

func (r *RoundRobin) Select(candidates []*Instance, _ string) *Instance {
	sorted := make([]*Instance, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].registeredAt < sorted[b].registeredAt
	})

	rotation := make([]*Instance, 0, len(sorted))
	for _, inst := range sorted {
		w := inst.Weight
		if w <= 0 {
			w = 1
		}
		for k := 0; k < w; k++ {
			rotation = append(rotation, inst)
		}
	}
	if len(rotation) == 0 {
		return nil
	}

	idx := r.cursor.Add(1) - 1
	return rotation[idx%uint64(len(rotation))]
}

// --- LeastLoaded -------------------------------------------------------

// LeastLoaded picks the instance minimizing active_connections/weight,
// tie-breaking on lower p95 latency then id.
type LeastLoaded struct{}

// NewLeastLoaded returns a LeastLoaded algorithm.
func NewLeastLoaded() *LeastLoaded { return &LeastLoaded{} }

func (LeastLoaded) Name() AlgorithmName { return AlgorithmLeastLoaded }

func (LeastLoaded) Select(candidates []*Instance, _ string) *Instance {
	return pickLeastLoaded(candidates)
}

func pickLeastLoaded(candidates []*Instance) *Instance {
	var best *Instance
	var bestLoad float64
	for _, inst := range candidates {
		w := inst.Weight
		if w <= 0 {
			w = 1
		}
		load := float64(inst.ActiveConnections()) / float64(w)

		switch {
		case best == nil:
			best, bestLoad = inst, load
		case load < bestLoad:
			best, bestLoad = inst, load
		case load == bestLoad:
			if inst.P95() < best.P95() {
				best = inst
			} else if inst.P95() == best.P95() && inst.ID < best.ID {
				best = inst
			}
		}
	}
	return best
}

// --- Geographic ---------------------------------------------------------

// Geographic partitions candidates by region. If regionHint names a region
// with at least one candidate, LeastLoaded is applied within that region;
// otherwise LeastLoaded runs over the whole candidate set.
type Geographic struct{}

// NewGeographic returns a Geographic algorithm.
func NewGeographic() *Geographic { return &Geographic{} }

func (Geographic) Name() AlgorithmName { return AlgorithmGeographic }

func (Geographic) Select(candidates []*Instance, regionHint string) *Instance {
	if regionHint != "" {
		var inRegion []*Instance
		for _, inst := range candidates {
			if inst.Region == regionHint {
				inRegion = append(inRegion, inst)
			}
		}
		if len(inRegion) > 0 {
			return pickLeastLoaded(inRegion)
		}
	}
	return pickLeastLoaded(candidates)
}

// NewAlgorithm constructs the Algorithm named by the given wire name. It
// returns RoundRobin for an unrecognized name, matching the gateway's
// default configuration behavior.
func NewAlgorithm(name AlgorithmName) Algorithm {
	switch name {
	case AlgorithmLeastLoaded:
		return NewLeastLoaded()
	case AlgorithmGeographic:
		return NewGeographic()
	default:
		return NewRoundRobin()
	}
}
