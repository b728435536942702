package discovery

import "sync"

// Metrics holds monotonically-updated discovery counters, reset only via
// ResetMetrics.
type Metrics struct {
	Discoveries     int64 `json:"discoveries"`
	CacheHits       int64 `json:"cache_hits"`
	CacheMisses     int64 `json:"cache_misses"`
	TablesFetched   int64 `json:"tables_fetched"`
	PartialFailures int64 `json:"partial_failures"`
	TotalFailures   int64 `json:"total_failures"`
	FallbacksServed int64 `json:"fallbacks_served"`
}

type metrics struct {
	mu sync.Mutex
	m  Metrics
}

func (s *metrics) add(fn func(*Metrics)) {
	s.mu.Lock()
	fn(&s.m)
	s.mu.Unlock()
}

func (s *metrics) snapshot() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m
}

func (s *metrics) reset() {
	s.mu.Lock()
	s.m = Metrics{}
	s.mu.Unlock()
}
