package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalPagesCrawled counts pages fetched, processed, and persisted.
	TotalPagesCrawled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_crawled_total",
		Help: "The total number of pages successfully crawled and persisted.",
	})
	// TotalPagesFailed counts pages recorded as failed, by reason.
	TotalPagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_pages_failed_total",
		Help: "The total number of failed pages partitioned by reason.",
	}, []string{"reason"})
	// TotalBytesDownloaded counts response body bytes.
	TotalBytesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_bytes_downloaded_total",
		Help: "The total number of response body bytes downloaded.",
	})
	// TotalLinksDiscovered counts outbound links reported by the processor.
	TotalLinksDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_links_discovered_total",
		Help: "The total number of outbound links discovered.",
	})
	// TotalContentSkipped counts responses dropped for unsupported content types.
	TotalContentSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_content_skipped_total",
		Help: "The total number of responses dropped as non-HTML.",
	})
)
