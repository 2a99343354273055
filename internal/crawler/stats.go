package crawler

import (
	"sync"

	"github.com/Viktoriusw/seriously-crawler/internal/clock"
)

// StatsAggregator tracks monotonically increasing crawl counters. Mutators
// are safe for concurrent use from any worker; Snapshot reads every field
// under the same lock acquisition so the view is internally consistent.
type StatsAggregator struct {
	clk clock.Clock

	mu    sync.Mutex
	stats StatsSnapshot
}

// NewStatsAggregator constructs an aggregator with the start time taken from
// the supplied clock.
func NewStatsAggregator(clk clock.Clock) *StatsAggregator {
	return &StatsAggregator{
		clk:   clk,
		stats: StatsSnapshot{StartedAt: clk.Now()},
	}
}

// IncrementCrawled records one successfully crawled page.
func (s *StatsAggregator) IncrementCrawled() {
	s.mu.Lock()
	s.stats.PagesCrawled++
	s.mu.Unlock()
}

// IncrementFailed records one failed page.
func (s *StatsAggregator) IncrementFailed() {
	s.mu.Lock()
	s.stats.PagesFailed++
	s.mu.Unlock()
}

// AddBytes records downloaded payload size.
func (s *StatsAggregator) AddBytes(n int64) {
	s.mu.Lock()
	s.stats.BytesDownloaded += n
	s.mu.Unlock()
}

// AddLinks records discovered outbound links.
func (s *StatsAggregator) AddLinks(n int64) {
	s.mu.Lock()
	s.stats.LinksDiscovered += n
	s.mu.Unlock()
}

// Crawled returns the current crawled-page count.
func (s *StatsAggregator) Crawled() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.PagesCrawled
}

// Snapshot returns a consistent copy of the counters with derived elapsed
// time and throughput.
func (s *StatsAggregator) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.stats
	snap.Elapsed = s.clk.Now().Sub(snap.StartedAt)
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.PagesPerSecond = float64(snap.PagesCrawled) / secs
	}
	return snap
}
