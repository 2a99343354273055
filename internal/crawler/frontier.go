package crawler

import (
	"container/heap"
	"regexp"
	"sync"

	"go.uber.org/zap"
)

// FrontierConfig captures the admission policy for the URL frontier.
type FrontierConfig struct {
	// MaxDepth is the deepest entry ever admitted; entries at
	// MaxDepth+1 are rejected.
	MaxDepth int
	// SeedDomains is the set of domains derived from the seed URLs; the
	// domain-scope policy is evaluated against them.
	SeedDomains []string
	// AllowSubdomains admits hosts that are subdomains of a seed domain.
	AllowSubdomains bool
	// FollowExternal admits any domain.
	FollowExternal bool
	// ExcludePatterns rejects URLs matching any of the patterns.
	ExcludePatterns []*regexp.Regexp
}

// Frontier is the priority queue of discovered-but-unfetched URLs. It is the
// single source of dedup truth for a session: a normalized URL is admitted
// at most once, tracked by a monotonically growing seen set. All methods are
// safe for concurrent use.
type Frontier struct {
	cfg    FrontierConfig
	logger *zap.Logger

	mu    sync.Mutex
	queue entryHeap
	seen  map[string]struct{}
	seq   uint64
}

// NewFrontier constructs an empty Frontier.
func NewFrontier(cfg FrontierConfig, logger *zap.Logger) *Frontier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Frontier{
		cfg:    cfg,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// Add admits a URL if it passes normalization, dedup, depth, exclusion, and
// domain-scope checks. It returns false on rejection; rejections are not
// errors and are never retried.
func (f *Frontier) Add(rawURL string, depth int, parent string, priority int) bool {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		f.logger.Debug("rejecting unparseable url", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	if depth > f.cfg.MaxDepth {
		return false
	}
	if f.isExcluded(normalized) {
		f.logger.Debug("url excluded by pattern", zap.String("url", normalized))
		return false
	}
	if !f.isAllowedDomain(normalized) {
		f.logger.Debug("domain out of scope", zap.String("url", normalized))
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[normalized]; dup {
		return false
	}
	f.seen[normalized] = struct{}{}
	f.seq++
	heap.Push(&f.queue, FrontierEntry{
		URL:      normalized,
		Depth:    depth,
		Parent:   parent,
		Priority: priority,
		Sequence: f.seq,
	})
	return true
}

// Next pops the highest-priority, earliest-sequence entry. The second return
// value is false when the queue is empty; Next never blocks.
func (f *Frontier) Next() (FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queue.Len() == 0 {
		return FrontierEntry{}, false
	}
	entry := heap.Pop(&f.queue).(FrontierEntry)
	return entry, true
}

// Size returns the number of queued entries.
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

// IsEmpty reports whether no entries are queued.
func (f *Frontier) IsEmpty() bool {
	return f.Size() == 0
}

// Seen reports whether a URL was ever admitted this session.
func (f *Frontier) Seen(rawURL string) bool {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[normalized]
	return ok
}

func (f *Frontier) isExcluded(normalized string) bool {
	for _, pattern := range f.cfg.ExcludePatterns {
		if pattern.MatchString(normalized) {
			return true
		}
	}
	return false
}

func (f *Frontier) isAllowedDomain(normalized string) bool {
	if f.cfg.FollowExternal {
		return true
	}
	host := Domain(normalized)
	for _, seed := range f.cfg.SeedDomains {
		if f.cfg.AllowSubdomains {
			if sameOrSubdomain(host, seed) {
				return true
			}
		} else if host == seed {
			return true
		}
	}
	return false
}

// entryHeap orders entries by descending priority, with the insertion
// sequence as a stable FIFO tie-break within equal priority.
type entryHeap []FrontierEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Sequence < h[j].Sequence
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(FrontierEntry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
