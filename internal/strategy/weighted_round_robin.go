package strategy

import (
	"sync"

	"github.com/angeloszaimis/routekit/internal/upstream"
)

// weightedRoundRobinStrategy implements smooth weighted round-robin load balancing.
// Uses the Nginx algorithm: each target accumulates its weight per selection cycle,
// the highest current value is chosen, then reduced by the sum of all weights.
type weightedRoundRobinStrategy struct {
	mutex   sync.Mutex
	current map[*upstream.Target]int
}

func NewWeightedRoundRobinStrategy() Strategy {
	return &weightedRoundRobinStrategy{
		current: make(map[*upstream.Target]int),
	}
}

func (w *weightedRoundRobinStrategy) Pick(targets []*upstream.Target) *upstream.Target {
	if len(targets) == 0 {
		return nil
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.cleanup(targets)

	totalWeight := 0
	var chosen *upstream.Target

	for _, t := range targets {
		weight := t.Weight()
		if weight <= 0 {
			continue
		}

		w.current[t] += weight
		totalWeight += weight

		if chosen == nil || w.current[t] > w.current[chosen] {
			chosen = t
		}
	}

	if chosen == nil {
		return nil
	}

	w.current[chosen] -= totalWeight
	return chosen
}

// cleanup forgets targets that left the pool, e.g. after turning unhealthy.
func (w *weightedRoundRobinStrategy) cleanup(targets []*upstream.Target) {
	alive := make(map[*upstream.Target]struct{}, len(targets))
	for _, t := range targets {
		alive[t] = struct{}{}
	}

	for t := range w.current {
		if _, ok := alive[t]; !ok {
			delete(w.current, t)
		}
	}
}
