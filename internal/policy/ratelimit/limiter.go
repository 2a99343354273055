// Package ratelimit enforces per-domain request pacing.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Viktoriusw/seriously-crawler/internal/clock"
)

// Limiter enforces a minimum delay between consecutive requests to the same
// domain. Domains pace independently; a slow domain never throttles a fast
// one. Acquire reserves the caller's slot before sleeping, so concurrent
// callers for one domain are spaced one delay apart in arrival order.
type Limiter struct {
	clk          clock.Clock
	defaultDelay time.Duration

	mu      sync.Mutex
	domains map[string]*domainState
}

type domainState struct {
	mu     sync.Mutex
	nextAt time.Time
	delay  time.Duration
}

// New creates a Limiter with the given default per-domain delay. A
// non-positive delay disables pacing until SetDomainDelay raises it.
func New(defaultDelay time.Duration, clk clock.Clock) *Limiter {
	return &Limiter{
		clk:          clk,
		defaultDelay: defaultDelay,
		domains:      make(map[string]*domainState),
	}
}

// Acquire blocks until the domain's pacing constraint is satisfied or ctx
// ends. A canceled wait burns the reserved slot.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	state := l.state(domain)

	state.mu.Lock()
	now := l.clk.Now()
	wait := state.nextAt.Sub(now)
	if wait < 0 {
		wait = 0
	}
	start := now.Add(wait)
	state.nextAt = start.Add(state.delay)
	state.mu.Unlock()

	if wait == 0 {
		return nil
	}
	if err := l.clk.Sleep(ctx, wait); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", domain, err)
	}
	return nil
}

// SetDomainDelay overrides the delay for one domain. Used when a robots.txt
// crawl-delay directive exceeds the configured default.
func (l *Limiter) SetDomainDelay(domain string, delay time.Duration) {
	state := l.state(domain)
	state.mu.Lock()
	state.delay = delay
	state.mu.Unlock()
}

// Delay reports the effective delay for a domain.
func (l *Limiter) Delay(domain string) time.Duration {
	state := l.state(domain)
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.delay
}

func (l *Limiter) state(domain string) *domainState {
	key := strings.ToLower(domain)
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.domains[key]
	if !ok {
		state = &domainState{delay: l.defaultDelay}
		l.domains[key] = state
	}
	return state
}

// TokenBucket is an alternative pacer built on golang.org/x/time/rate. It
// refills one token per delay interval and allows a configurable burst, which
// smooths crawls over domains that tolerate short spikes.
type TokenBucket struct {
	burst        int
	defaultDelay time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewTokenBucket creates a TokenBucket pacer. Burst values below 1 are
// raised to 1.
func NewTokenBucket(defaultDelay time.Duration, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		burst:        burst,
		defaultDelay: defaultDelay,
		limiters:     make(map[string]*rate.Limiter),
	}
}

// Acquire waits for a token for the domain, respecting ctx.
func (t *TokenBucket) Acquire(ctx context.Context, domain string) error {
	if err := t.limiter(domain).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", domain, err)
	}
	return nil
}

// SetDomainDelay adjusts the domain's refill interval.
func (t *TokenBucket) SetDomainDelay(domain string, delay time.Duration) {
	t.limiter(domain).SetLimit(limitFor(delay))
}

func (t *TokenBucket) limiter(domain string) *rate.Limiter {
	key := strings.ToLower(domain)
	t.mu.Lock()
	defer t.mu.Unlock()
	limiter, ok := t.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(limitFor(t.defaultDelay), t.burst)
		t.limiters[key] = limiter
	}
	return limiter
}

func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}
