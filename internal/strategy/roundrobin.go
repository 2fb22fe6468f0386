package strategy

import (
	"sync/atomic"

	"github.com/angeloszaimis/routekit/internal/upstream"
)

type roundRobinStrategy struct {
	current atomic.Uint64
}

func (rr *roundRobinStrategy) Pick(targets []*upstream.Target) *upstream.Target {
	if len(targets) == 0 {
		return nil
	}

	n := rr.current.Add(1)
	return targets[(n-1)%uint64(len(targets))]
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}
