// Package cache implements the two-tier cache half of the Connection /
// Cache Layer (C4): a bounded, TTL-based, process-local cache in front
// of an optional pluggable SharedCache, keyed by
// (repoURL, branch, promptClass, promptBody). Grounded on the teacher's
// internal/cache.MetricsCache: lock-free sync.Map storage, atomic
// hit/miss counters, and oldest-entry-by-timestamp eviction via Range.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpsla/reviewengine/internal/rlog"
)

// PromptClass is the small enum used both for TTL selection and as part
// of the cache key (spec §4.4).
type PromptClass string

const (
	PromptComprehensive  PromptClass = "comprehensive"
	PromptSnippetRequery PromptClass = "snippet-requery"
	gapFillPrefix                    = "gapfill-"
)

// GapFillClass returns the PromptClass for the Nth GapFill iteration
// (k≥2 in the collection loop, spec §4.5).
func GapFillClass(iteration int) PromptClass {
	return PromptClass(gapFillPrefix + strconv.Itoa(iteration))
}

const (
	// DefaultComprehensiveTTL and DefaultGapFillTTL are the spec §6
	// defaults, used when New is given a zero duration for either.
	DefaultComprehensiveTTL = 5 * time.Minute
	DefaultGapFillTTL       = 10 * time.Minute

	// DefaultCapacity is the process-local bound (spec §4.4: "≈ 50 entries").
	DefaultCapacity = 50
)

func (c *Cache) ttlFor(class PromptClass) time.Duration {
	if class == PromptComprehensive {
		return c.comprehensiveTTL
	}
	return c.gapFillTTL
}

// SharedCache is the optional external tier (spec §6, §9: "the cache is
// an interface with a default in-process implementation; the external
// (shared) implementation is pluggable and may be absent"). A nil
// SharedCache is valid and simply disables the second tier.
type SharedCache interface {
	Get(ctx context.Context, key string) (interface{}, bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type entry struct {
	value     interface{}
	cachedAt  int64 // UnixNano of the last store or local hit, atomic
	expiresAt int64 // UnixNano, atomic
	delivered int32 // atomic bool
}

// Cache is the two-tier Analyzer response cache.
type Cache struct {
	local    sync.Map // map[string]*entry
	capacity int
	shared   SharedCache

	comprehensiveTTL time.Duration
	gapFillTTL       time.Duration

	count   int64
	hits    int64
	misses  int64
	evicted int64
}

// New creates a Cache with the given local capacity and per-class TTLs
// (spec §6: "cacheTtlSecondsComprehensive", "cacheTtlSecondsGapFill").
// shared may be nil. A zero capacity or TTL falls back to its spec
// default rather than disabling that knob.
func New(capacity int, shared SharedCache, comprehensiveTTL, gapFillTTL time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if comprehensiveTTL <= 0 {
		comprehensiveTTL = DefaultComprehensiveTTL
	}
	if gapFillTTL <= 0 {
		gapFillTTL = DefaultGapFillTTL
	}
	return &Cache{capacity: capacity, shared: shared, comprehensiveTTL: comprehensiveTTL, gapFillTTL: gapFillTTL}
}

// Key computes the cache key for one (repoURL, branch, promptClass,
// promptBody) tuple (spec §4.4).
func Key(repoURL, branch string, class PromptClass, promptBody string) string {
	h := sha256.New()
	h.Write([]byte(repoURL))
	h.Write([]byte{0})
	h.Write([]byte(branch))
	h.Write([]byte{0})
	h.Write([]byte(class))
	h.Write([]byte{0})
	h.Write([]byte(promptBody))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for key, checking the local tier then
// the shared tier (promoting a shared hit into the local tier).
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	now := time.Now().UnixNano()
	if v, ok := c.local.Load(key); ok {
		e := v.(*entry)
		if now <= atomic.LoadInt64(&e.expiresAt) {
			atomic.AddInt64(&c.hits, 1)
			atomic.StoreInt64(&e.cachedAt, now)
			return e.value, true
		}
		c.local.Delete(key)
		atomic.AddInt64(&c.count, -1)
	}

	if c.shared != nil {
		if val, ok, err := c.shared.Get(ctx, key); err != nil {
			rlog.Printf("cache: shared tier Get(%s) failed: %v", key, err)
		} else if ok {
			atomic.AddInt64(&c.hits, 1)
			c.storeLocal(key, val, c.gapFillTTL)
			return val, true
		}
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, false
}

// Set stores value under key in both tiers, with the TTL appropriate to
// class.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, class PromptClass) {
	ttl := c.ttlFor(class)
	c.storeLocal(key, value, ttl)
	if c.shared != nil {
		if err := c.shared.Set(ctx, key, value, ttl); err != nil {
			rlog.Printf("cache: shared tier Set(%s) failed: %v", key, err)
		}
	}
}

func (c *Cache) storeLocal(key string, value interface{}, ttl time.Duration) {
	now := time.Now().UnixNano()
	e := &entry{value: value, cachedAt: now, expiresAt: now + ttl.Nanoseconds()}
	if _, loaded := c.local.LoadOrStore(key, e); !loaded {
		if n := atomic.AddInt64(&c.count, 1); n > int64(c.capacity) {
			c.evictOldest()
		}
	} else {
		c.local.Store(key, e)
	}
}

// evictOldest removes the local entry with the smallest cachedAt,
// mirroring the teacher's evictOldestFromContent scan.
func (c *Cache) evictOldest() {
	var oldestKey interface{}
	oldestTime := time.Now().UnixNano()

	c.local.Range(func(key, value interface{}) bool {
		e := value.(*entry)
		if t := atomic.LoadInt64(&e.cachedAt); t < oldestTime {
			oldestTime = t
			oldestKey = key
		}
		return true
	})

	if oldestKey != nil {
		c.local.Delete(oldestKey)
		atomic.AddInt64(&c.count, -1)
		atomic.AddInt64(&c.evicted, 1)
	}
}

// Invalidate removes key from both tiers, used when the Analyzer call
// that produced it failed (spec §4.4: "Entries are invalidated on
// analyzer error").
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if _, ok := c.local.LoadAndDelete(key); ok {
		atomic.AddInt64(&c.count, -1)
	}
	if c.shared != nil {
		if err := c.shared.Invalidate(ctx, key); err != nil {
			rlog.Printf("cache: shared tier Invalidate(%s) failed: %v", key, err)
		}
	}
}

// MarkDelivered lets keys be evicted on the cache's own schedule once
// the orchestrator has emitted the final ComparisonResult built from
// them (spec §4.4: "delivered clearing"). The local tier here evicts
// them immediately, which is a valid schedule and keeps long-running
// processes from accumulating unbounded history.
func (c *Cache) MarkDelivered(keys []string) {
	for _, key := range keys {
		if v, ok := c.local.Load(key); ok {
			atomic.StoreInt32(&v.(*entry).delivered, 1)
			c.local.Delete(key)
			atomic.AddInt64(&c.count, -1)
		}
	}
}

// Stats is a snapshot of cache counters, useful for diagnostics.
type Stats struct {
	Hits    int64
	Misses  int64
	Evicted int64
	Entries int64
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Evicted: atomic.LoadInt64(&c.evicted),
		Entries: atomic.LoadInt64(&c.count),
	}
}
