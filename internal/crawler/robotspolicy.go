package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Viktoriusw/seriously-crawler/internal/clock"
)

const robotsMaxBody = 1 << 20

// RobotsCache fetches, parses, and caches robots.txt per domain with a TTL.
// Refreshes are single-flighted: concurrent callers for the same stale or
// missing domain block on one fetch and all observe the resulting policy.
// When robots.txt cannot be retrieved the domain is treated as fully allowed
// (fail-open).
type RobotsCache struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	clk       clock.Clock
	logger    *zap.Logger

	mu      sync.RWMutex
	entries map[string]*robotsEntry
	group   singleflight.Group
}

// robotsEntry caches one domain's parsed policy. A nil data field marks a
// fail-open entry (robots.txt unreachable).
type robotsEntry struct {
	data       *robotstxt.RobotsData
	crawlDelay time.Duration
	fetchedAt  time.Time
}

// NewRobotsPolicy builds a RobotsPolicy honoring the respect toggle. With
// respect disabled every URL is allowed and no robots.txt is ever fetched.
func NewRobotsPolicy(respect bool, userAgent string, ttl, timeout time.Duration, clk clock.Clock, logger *zap.Logger) RobotsPolicy {
	if !respect {
		return &allowAllPolicy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsCache{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		ttl:       ttl,
		clk:       clk,
		logger:    logger,
		entries:   make(map[string]*robotsEntry),
	}
}

// Allowed resolves the URL's domain, refreshing the cached policy if needed,
// and evaluates the path against the ruleset for the configured user agent.
func (r *RobotsCache) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	entry := r.policy(ctx, parsed)
	if entry.data == nil {
		// Fail-open: robots.txt could not be retrieved.
		return true
	}
	group := entry.data.FindGroup(r.userAgent)
	if group == nil {
		return true
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

// CrawlDelay returns the crawl-delay directive cached for a domain. It only
// consults the cache; Allowed must have been called for the domain first.
func (r *RobotsCache) CrawlDelay(domain string) (time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[strings.ToLower(domain)]
	if !ok || entry.crawlDelay <= 0 {
		return 0, false
	}
	return entry.crawlDelay, true
}

func (r *RobotsCache) policy(ctx context.Context, parsed *url.URL) *robotsEntry {
	key := strings.ToLower(parsed.Hostname())
	if entry, ok := r.fresh(key); ok {
		return entry
	}

	value, _, _ := r.group.Do(key, func() (any, error) {
		// Double-check: another caller may have refreshed while this one
		// waited on the flight.
		if entry, ok := r.fresh(key); ok {
			return entry, nil
		}
		entry := r.fetch(ctx, parsed)
		r.mu.Lock()
		r.entries[key] = entry
		r.mu.Unlock()
		return entry, nil
	})
	return value.(*robotsEntry)
}

func (r *RobotsCache) fresh(key string) (*robotsEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[key]
	if !ok || r.clk.Now().Sub(entry.fetchedAt) >= r.ttl {
		return nil, false
	}
	return entry, true
}

func (r *RobotsCache) fetch(ctx context.Context, parsed *url.URL) *robotsEntry {
	entry := &robotsEntry{fetchedAt: r.clk.Now()}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", parsed.Scheme, parsed.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return entry
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("robots fetch failed; allowing domain",
			zap.String("host", parsed.Host), zap.Error(err))
		return entry
	}
	defer resp.Body.Close() //nolint:errcheck // nothing to do on close failure

	if resp.StatusCode >= 500 {
		r.logger.Warn("robots fetch returned server error; allowing domain",
			zap.String("host", parsed.Host), zap.Int("status", resp.StatusCode))
		return entry
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBody))
	if err != nil {
		return entry
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		r.logger.Warn("robots parse failed; allowing domain",
			zap.String("host", parsed.Host), zap.Error(err))
		return entry
	}

	entry.data = data
	if group := data.FindGroup(r.userAgent); group != nil {
		entry.crawlDelay = group.CrawlDelay
	}
	return entry
}

type allowAllPolicy struct{}

func (allowAllPolicy) Allowed(context.Context, string) bool { return true }

func (allowAllPolicy) CrawlDelay(string) (time.Duration, bool) { return 0, false }
