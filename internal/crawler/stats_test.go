package crawler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsAggregatorSnapshot(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Unix(1700000000, 0).UTC())
	stats := NewStatsAggregator(clk)

	stats.IncrementCrawled()
	stats.IncrementCrawled()
	stats.IncrementFailed()
	stats.AddBytes(2048)
	stats.AddLinks(7)

	clk.Advance(4 * time.Second)
	snap := stats.Snapshot()

	assert.Equal(t, int64(2), snap.PagesCrawled)
	assert.Equal(t, int64(1), snap.PagesFailed)
	assert.Equal(t, int64(2048), snap.BytesDownloaded)
	assert.Equal(t, int64(7), snap.LinksDiscovered)
	assert.Equal(t, 4*time.Second, snap.Elapsed)
	assert.InDelta(t, 0.5, snap.PagesPerSecond, 0.001)
}

func TestStatsAggregatorConcurrentMutation(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Unix(1700000000, 0).UTC())
	stats := NewStatsAggregator(clk)

	const workers = 8
	const perWorker = 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				stats.IncrementCrawled()
				stats.AddBytes(10)
				stats.AddLinks(2)
			}
		}()
	}
	wg.Wait()

	snap := stats.Snapshot()
	assert.Equal(t, int64(workers*perWorker), snap.PagesCrawled)
	assert.Equal(t, int64(workers*perWorker*10), snap.BytesDownloaded)
	assert.Equal(t, int64(workers*perWorker*2), snap.LinksDiscovered)
}
