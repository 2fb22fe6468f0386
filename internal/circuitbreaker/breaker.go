package circuitbreaker

import (
	"sync"
	"time"

	"github.com/angeloszaimis/routekit/internal/web"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests
	StateHalfOpen              // Admitting a bounded number of probes
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Settings configures a breaker. Zero fields take the defaults below.
type Settings struct {
	FailureThreshold   int
	Window             time.Duration
	Cooldown           time.Duration
	HalfOpenProbeCount int
	SuccessThreshold   int

	Now           func() time.Time
	OnStateChange func(name string, from, to State)
}

const (
	DefaultFailureThreshold   = 3
	DefaultWindow             = 30 * time.Second
	DefaultCooldown           = 10 * time.Second
	DefaultHalfOpenProbeCount = 1
	DefaultSuccessThreshold   = 1
)

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.Window <= 0 {
		s.Window = DefaultWindow
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultCooldown
	}
	if s.HalfOpenProbeCount <= 0 {
		s.HalfOpenProbeCount = DefaultHalfOpenProbeCount
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = DefaultSuccessThreshold
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// CircuitBreaker guards a single upstream. Failures are counted inside a
// sliding window; reaching the threshold opens the circuit for the cooldown,
// after which a bounded number of probes decide whether it closes again.
type CircuitBreaker struct {
	mutex    sync.Mutex
	name     string
	settings Settings

	state      State
	generation uint64
	failures   []time.Time
	openedAt   time.Time
	probes     int
	successes  int
}

func NewCircuitBreaker(name string, settings Settings) *CircuitBreaker {
	return &CircuitBreaker{
		name:     name,
		settings: settings.withDefaults(),
		state:    StateClosed,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Allow asks to send one request. On admission it returns a done callback
// that must be called exactly once with the request's outcome; extra calls
// are ignored. It returns web.ErrCircuitOpen while the circuit is open or
// while all half-open probe slots are taken.
func (cb *CircuitBreaker) Allow() (done func(success bool), err error) {
	cb.mutex.Lock()
	var changed []transition
	defer func() {
		cb.mutex.Unlock()
		cb.notify(changed)
	}()

	now := cb.settings.Now()

	if cb.state == StateOpen {
		if now.Sub(cb.openedAt) < cb.settings.Cooldown {
			return nil, web.ErrCircuitOpen
		}
		changed = append(changed, cb.setState(StateHalfOpen, now))
	}

	probe := false
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.settings.HalfOpenProbeCount {
			return nil, web.ErrCircuitOpen
		}
		cb.probes++
		probe = true
	}

	gen := cb.generation
	var once sync.Once
	return func(success bool) {
		once.Do(func() { cb.finish(gen, probe, success) })
	}, nil
}

func (cb *CircuitBreaker) finish(gen uint64, probe, success bool) {
	cb.mutex.Lock()
	var changed []transition
	defer func() {
		cb.mutex.Unlock()
		cb.notify(changed)
	}()

	// The circuit moved on since this request was admitted.
	if gen != cb.generation {
		return
	}
	if probe {
		cb.probes--
	}
	changed = cb.record(success, cb.settings.Now())
}

// RecordFailure counts a failure observed outside Allow, such as a failed
// active health probe.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	changed := cb.record(false, cb.settings.Now())
	cb.mutex.Unlock()
	cb.notify(changed)
}

// RecordSuccess counts a success observed outside Allow.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	changed := cb.record(true, cb.settings.Now())
	cb.mutex.Unlock()
	cb.notify(changed)
}

func (cb *CircuitBreaker) record(success bool, now time.Time) []transition {
	switch cb.state {
	case StateClosed:
		if success {
			return nil
		}
		cb.failures = append(cb.pruned(now), now)
		if len(cb.failures) >= cb.settings.FailureThreshold {
			return []transition{cb.setState(StateOpen, now)}
		}
	case StateHalfOpen:
		if !success {
			return []transition{cb.setState(StateOpen, now)}
		}
		cb.successes++
		if cb.successes >= cb.settings.SuccessThreshold {
			return []transition{cb.setState(StateClosed, now)}
		}
	case StateOpen:
		// Outcomes reported while open do not shorten or extend the cooldown.
	}
	return nil
}

// pruned drops failures that fell out of the window.
func (cb *CircuitBreaker) pruned(now time.Time) []time.Time {
	cutoff := now.Add(-cb.settings.Window)
	i := 0
	for i < len(cb.failures) && !cb.failures[i].After(cutoff) {
		i++
	}
	return cb.failures[i:]
}

type transition struct{ from, to State }

func (cb *CircuitBreaker) setState(to State, now time.Time) transition {
	t := transition{from: cb.state, to: to}

	cb.state = to
	cb.generation++
	cb.probes = 0
	cb.successes = 0
	cb.failures = nil
	if to == StateOpen {
		cb.openedAt = now
	}
	return t
}

func (cb *CircuitBreaker) notify(changed []transition) {
	if cb.settings.OnStateChange == nil {
		return
	}
	for _, t := range changed {
		cb.settings.OnStateChange(cb.name, t.from, t.to)
	}
}

// State reports the stored state. An open circuit whose cooldown has passed
// stays OPEN until the next Allow moves it to HALF-OPEN.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Failures returns the number of failures currently inside the window.
func (cb *CircuitBreaker) Failures() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.failures = cb.pruned(cb.settings.Now())
	return len(cb.failures)
}
