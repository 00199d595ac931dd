package pipeline

import "sync/atomic"

// Metrics counts pipeline outcomes. Safe for concurrent use; shared
// across runs by reference. The counters are read through Snapshot; they
// are not exported as OpenTelemetry instruments.
type Metrics struct {
	buildsStarted        atomic.Int64
	buildsCompleted      atomic.Int64
	buildsFailed         atomic.Int64
	circuitBreakerTrips  atomic.Int64
	escalations          atomic.Int64
	recommendExtendCount atomic.Int64
	totalBuildIterations atomic.Int64
}

// NewMetrics creates a zeroed metrics sink.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) BuildStarted() { m.buildsStarted.Add(1) }

func (m *Metrics) BuildCompleted(iterations int) {
	m.buildsCompleted.Add(1)
	m.totalBuildIterations.Add(int64(iterations))
}

func (m *Metrics) BuildFailed() { m.buildsFailed.Add(1) }

func (m *Metrics) CircuitBreaker() { m.circuitBreakerTrips.Add(1) }

func (m *Metrics) Escalated() { m.escalations.Add(1) }

func (m *Metrics) RecommendExtend() { m.recommendExtendCount.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	BuildsStarted        int64 `json:"builds_started"`
	BuildsCompleted      int64 `json:"builds_completed"`
	BuildsFailed         int64 `json:"builds_failed"`
	CircuitBreakerTrips  int64 `json:"circuit_breaker_trips"`
	Escalations          int64 `json:"escalations"`
	RecommendExtendCount int64 `json:"recommend_extend_count"`
	TotalBuildIterations int64 `json:"total_build_iterations"`
}

// Snapshot returns a copy of the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		BuildsStarted:        m.buildsStarted.Load(),
		BuildsCompleted:      m.buildsCompleted.Load(),
		BuildsFailed:         m.buildsFailed.Load(),
		CircuitBreakerTrips:  m.circuitBreakerTrips.Load(),
		Escalations:          m.escalations.Load(),
		RecommendExtendCount: m.recommendExtendCount.Load(),
		TotalBuildIterations: m.totalBuildIterations.Load(),
	}
}
