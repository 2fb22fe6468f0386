package strategy

import (
	"math"

	"github.com/angeloszaimis/routekit/internal/upstream"
)

type leastConnStrategy struct{}

// Pick returns the target with the fewest in-flight requests; ties go to the
// earliest target.
func (l *leastConnStrategy) Pick(targets []*upstream.Target) *upstream.Target {
	var best *upstream.Target
	bestConns := math.MaxInt

	for _, t := range targets {
		if conns := t.ActiveConnections(); conns < bestConns {
			bestConns = conns
			best = t
		}
	}
	return best
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}
