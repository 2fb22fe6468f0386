package strategy

import (
	"time"

	"github.com/angeloszaimis/routekit/internal/upstream"
)

type leastResponseStrategy struct{}

// Pick scores each target by EWMA latency times (in-flight + 1). Targets
// without a latency sample are tried first.
func (l *leastResponseStrategy) Pick(targets []*upstream.Target) *upstream.Target {
	var chosen *upstream.Target
	var best time.Duration

	for _, t := range targets {
		ewma := t.EWMATime()
		if ewma == 0 {
			return t
		}

		score := ewma * (time.Duration(t.ActiveConnections()) + 1)
		if chosen == nil || score < best {
			chosen = t
			best = score
		}
	}

	return chosen
}

func NewLeastResponseStrategy() Strategy {
	return &leastResponseStrategy{}
}
