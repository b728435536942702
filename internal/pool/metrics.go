package pool

import "time"

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Total       int     `json:"total"`
	Idle        int     `json:"idle"`
	Active      int     `json:"active"`
	Unhealthy   int     `json:"unhealthy"`
	Waiters     int     `json:"waiters"`
	MaxConns    int     `json:"max_conns"`
	Utilization float64 `json:"utilization"` // active / max_conns
}

// Metrics holds monotonically-updated pool counters. Counters only reset
// via ResetMetrics.
type Metrics struct {
	Acquisitions       int64         `json:"acquisitions"`
	Timeouts           int64         `json:"timeouts"`
	FactoryFailures    int64         `json:"factory_failures"`
	Created            int64         `json:"created"`
	Closed             int64         `json:"closed"`
	HealthChecksPassed int64         `json:"health_checks_passed"`
	HealthChecksFailed int64         `json:"health_checks_failed"`
	Evictions          int64         `json:"evictions"`
	PeakSize           int           `json:"peak_size"`
	AvgAcquireLatency  time.Duration `json:"avg_acquire_latency"`
}

// metrics is the internal accumulator, guarded by the pool lock.
type metrics struct {
	acquisitions       int64
	timeouts           int64
	factoryFailures    int64
	created            int64
	closed             int64
	healthChecksPassed int64
	healthChecksFailed int64
	evictions          int64
	peakSize           int
	totalAcquireWait   time.Duration
}

func (m *metrics) snapshot() Metrics {
	out := Metrics{
		Acquisitions:       m.acquisitions,
		Timeouts:           m.timeouts,
		FactoryFailures:    m.factoryFailures,
		Created:            m.created,
		Closed:             m.closed,
		HealthChecksPassed: m.healthChecksPassed,
		HealthChecksFailed: m.healthChecksFailed,
		Evictions:          m.evictions,
		PeakSize:           m.peakSize,
	}
	if m.acquisitions > 0 {
		out.AvgAcquireLatency = m.totalAcquireWait / time.Duration(m.acquisitions)
	}
	return out
}
