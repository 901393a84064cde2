package cache

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopdash/dataaccess/logger"
)

// DefaultTTL is the lifetime of a cached response when Set is called with ttl <= 0.
const DefaultTTL = 5 * time.Minute

// DefaultMaxSize is the entry count above which a sweep evicts the oldest entries.
const DefaultMaxSize = 100

// DefaultSweepDelay is how long the janitor waits after a write before sweeping.
const DefaultSweepDelay = time.Second

// Entry is a single cached response body.
type Entry struct {
	Key        string
	Data       []byte
	InsertedAt time.Time
	TTL        time.Duration
}

// Valid reports whether the entry is still live at now.
func (e *Entry) Valid(now time.Time) bool {
	return now.Sub(e.InsertedAt) < e.TTL
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

type config struct {
	ttl        time.Duration
	maxSize    int
	sweepDelay time.Duration
	now        func() time.Time
	logger     logger.Logger
}

// Option configures a Cache.
type Option func(*config)

// WithTTL sets the default TTL for cached values. Defaults to DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(c *config) { c.ttl = d }
}

// WithMaxSize sets the size bound enforced by the janitor. Defaults to DefaultMaxSize.
func WithMaxSize(n int) Option {
	return func(c *config) { c.maxSize = n }
}

// WithSweepDelay sets the debounce delay between a write and the janitor sweep.
func WithSweepDelay(d time.Duration) Option {
	return func(c *config) { c.sweepDelay = d }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithLogger sets the logger used for sweep diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

func applyOptions(opts []Option) config {
	cfg := config{
		ttl:        DefaultTTL,
		maxSize:    DefaultMaxSize,
		sweepDelay: DefaultSweepDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = DefaultTTL
	}
	if cfg.maxSize <= 0 {
		cfg.maxSize = DefaultMaxSize
	}
	cfg.logger = logger.OrNop(cfg.logger)
	return cfg
}

// Cache maps request fingerprints to response bodies. It is safe for
// concurrent use; one instance is normally shared by every caller of a client.
type Cache struct {
	mutex   sync.Mutex
	entries map[string]*Entry
	cfg     config
	timer   *time.Timer
	pending bool
	closed  bool
	hits    uint64
	misses  uint64
}

// New returns an empty Cache.
func New(opts ...Option) *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
		cfg:     applyOptions(opts),
	}
}

// Key derives the cache key for a request. NUL never appears in an HTTP
// method, a request path or serialized JSON, so distinct inputs never collide.
func Key(method, path string, body []byte) string {
	var sb strings.Builder
	sb.Grow(len(method) + len(path) + len(body) + 2)
	sb.WriteString(strings.ToUpper(method))
	sb.WriteByte(0)
	sb.WriteString(path)
	sb.WriteByte(0)
	sb.Write(body)
	return sb.String()
}

// Get returns a copy of the cached body for key. Expired entries are reported absent
// and removed.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if !entry.Valid(c.cfg.now()) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return slices.Clone(entry.Data), true
}

// Set stores a copy of data under key, replacing any previous entry. A ttl <= 0 uses the
// configured default.
func (c *Cache) Set(key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.ttl
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = &Entry{
		Key:        key,
		Data:       slices.Clone(data),
		InsertedAt: c.cfg.now(),
		TTL:        ttl,
	}
	c.scheduleSweepLocked()
}

// Invalidate removes every entry whose key contains substr and returns how
// many were removed. An empty substr clears the cache.
func (c *Cache) Invalidate(substr string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if substr == "" {
		n := len(c.entries)
		c.entries = make(map[string]*Entry)
		return n
	}
	var n int
	for key := range c.entries {
		if strings.Contains(key, substr) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}

// Stats returns hit/miss counters and the current entry count.
func (c *Cache) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

// Close cancels a pending sweep. Further writes no longer schedule one.
func (c *Cache) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = false
	return nil
}
