package decisionlog

import (
	"context"
	"strings"
	"time"
)

// Event is one policy decision.
type Event struct {
	Policy  string
	Key     string
	Allowed bool

	Method string
	Route  string

	At time.Time
}

// Store persists decisions. Implementations must be safe for concurrent use.
type Store interface {
	Record(ctx context.Context, ev Event) error
}

// Counters tallies decisions.
type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
}

func field(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func routeOf(ev Event) string {
	return strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Route))
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, Event) error { return nil }
