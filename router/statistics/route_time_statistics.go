package statistics

import (
	"sort"
	"sync"
	"time"

	"github.com/caio/go-tdigest"
)

// RouteTimeStatistics keeps per strategy route time digests in milliseconds.
type RouteTimeStatistics struct {
	mu      sync.Mutex
	digests map[string]*tdigest.TDigest
}

var RouteTimes = NewRouteTimeStatistics()

func NewRouteTimeStatistics() *RouteTimeStatistics {
	return &RouteTimeStatistics{digests: map[string]*tdigest.TDigest{}}
}

func (s *RouteTimeStatistics) Add(strategy string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	td, ok := s.digests[strategy]
	if !ok {
		var err error
		if td, err = tdigest.New(); err != nil {
			return
		}
		s.digests[strategy] = td
	}
	_ = td.Add(float64(d.Microseconds()) / 1000)
}

// Quantile returns the q-th route time quantile of strategy in
// milliseconds, or 0 when nothing was recorded.
func (s *RouteTimeStatistics) Quantile(strategy string, q float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	td, ok := s.digests[strategy]
	if !ok {
		return 0
	}
	return td.Quantile(q)
}

func (s *RouteTimeStatistics) Count(strategy string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if td, ok := s.digests[strategy]; ok {
		return td.Count()
	}
	return 0
}

// Strategies lists strategies with recorded times.
func (s *RouteTimeStatistics) Strategies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.digests))
	for k := range s.digests {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *RouteTimeStatistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests = map[string]*tdigest.TDigest{}
}
