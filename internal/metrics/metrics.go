package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	selections    map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	healthStatus  map[string]bool
	breakerState  map[string]string
	routes        map[string]map[string]int64
	cache         map[string]int64
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                       `json:"total_requests"`
	Uptime        time.Duration               `json:"uptime"`
	Algorithm     string                      `json:"algorithm"`
	Routes        map[string]map[string]int64 `json:"routes"`
	Cache         map[string]int64            `json:"cache"`
	Backends      map[string]BackendMetrics   `json:"backends"`
}

type BackendMetrics struct {
	Requests     int64         `json:"requests"`
	Selections   int64         `json:"selections"`
	Healthy      bool          `json:"healthy"`
	BreakerState string        `json:"breaker_state,omitempty"`
	AvgResponse  time.Duration `json:"avg_response"`
	P50Response  time.Duration `json:"p50_response"`
	P95Response  time.Duration `json:"p95_response"`
	P99Response  time.Duration `json:"p99_response"`
	StatusCodes  map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		selections:    make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		healthStatus:  make(map[string]bool),
		breakerState:  make(map[string]string),
		routes:        make(map[string]map[string]int64),
		cache:         make(map[string]int64),
		startTime:     time.Now(),
	}
}

// RecordRequest counts a finished pipeline request under its outcome.
func (m *Metrics) RecordRequest(route, outcome string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.routes[route] == nil {
		m.routes[route] = make(map[string]int64)
	}
	m.routes[route][outcome]++
}

func (m *Metrics) RecordBackendSelection(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[backend]++
}

func (m *Metrics) RecordResponse(backend string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[backend] = append(m.responseTimes[backend], duration)
	if len(m.responseTimes[backend]) > maxSamples {
		m.responseTimes[backend] = m.responseTimes[backend][1:]
	}

	if m.statusCodes[backend] == nil {
		m.statusCodes[backend] = make(map[int]int64)
	}
	m.statusCodes[backend][statusCode]++
}

func (m *Metrics) UpdateHealthStatus(backend string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[backend] = healthy
}

func (m *Metrics) UpdateBreakerState(backend, state string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breakerState[backend] = state
}

func (m *Metrics) RecordCacheLookup(status string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.cache[status]++
}

func (m *Metrics) Snapshot(algorithm string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:    time.Since(m.startTime),
		Algorithm: algorithm,
		Routes:    make(map[string]map[string]int64, len(m.routes)),
		Cache:     make(map[string]int64, len(m.cache)),
		Backends:  make(map[string]BackendMetrics),
	}

	for route, outcomes := range m.routes {
		copied := make(map[string]int64, len(outcomes))
		for outcome, n := range outcomes {
			copied[outcome] = n
			snap.TotalRequests += n
		}
		snap.Routes[route] = copied
	}
	for status, n := range m.cache {
		snap.Cache[status] = n
	}

	allBackends := make(map[string]bool)
	for backend := range m.selections {
		allBackends[backend] = true
	}
	for backend := range m.responseTimes {
		allBackends[backend] = true
	}
	for backend := range m.healthStatus {
		allBackends[backend] = true
	}
	for backend := range m.breakerState {
		allBackends[backend] = true
	}

	for backend := range allBackends {
		healthy, known := m.healthStatus[backend]
		bm := BackendMetrics{
			Selections:   m.selections[backend],
			Healthy:      healthy || !known,
			BreakerState: m.breakerState[backend],
			StatusCodes:  make(map[int]int64, len(m.statusCodes[backend])),
		}
		for code, n := range m.statusCodes[backend] {
			bm.StatusCodes[code] = n
			bm.Requests += n
		}

		durations := m.responseTimes[backend]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgResponse = average(sorted)
			bm.P50Response = percentile(sorted, 0.50)
			bm.P95Response = percentile(sorted, 0.95)
			bm.P99Response = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
