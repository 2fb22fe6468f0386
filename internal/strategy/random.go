package strategy

import (
	"math/rand/v2"

	"github.com/angeloszaimis/routekit/internal/upstream"
)

type randomStrategy struct{}

func (r *randomStrategy) Pick(targets []*upstream.Target) *upstream.Target {
	if len(targets) == 0 {
		return nil
	}
	return targets[rand.IntN(len(targets))]
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}

// weightedRandomStrategy picks each target with probability proportional to
// its weight.
type weightedRandomStrategy struct {
	intN func(n int) int
}

func (w *weightedRandomStrategy) Pick(targets []*upstream.Target) *upstream.Target {
	total := 0
	for _, t := range targets {
		total += t.Weight()
	}
	if total <= 0 {
		return nil
	}

	r := w.intN(total)
	for _, t := range targets {
		r -= t.Weight()
		if r < 0 {
			return t
		}
	}
	return targets[len(targets)-1]
}

func NewWeightedRandomStrategy() Strategy {
	return &weightedRandomStrategy{intN: rand.IntN}
}
