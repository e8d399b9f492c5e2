package cache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DimaJoyti/contractfabric/pkg/clock"
)

// Config controls a Cache's capacity, TTL default, and eviction policy.
type Config struct {
	Policy      Policy
	GlobalTTL   time.Duration
	MaxCapacity int
	Shards      int
}

// DefaultConfig returns the gateway's development defaults.
func DefaultConfig() Config {
	return Config{Policy: PolicyLRU, GlobalTTL: 60 * time.Second, MaxCapacity: 10_000, Shards: 32}
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*Entry
	cap     int
}

// Cache is a striped-lock, read-through cache. Each shard serializes its
// own Get/Put/Invalidate calls so distinct keys proceed concurrently while
// a single key's operations are linearized.
type Cache struct {
	cfg    Config
	shards []*shard
	clock  clock.Clock

	recencyCounter atomic.Uint64

	hits                 atomic.Uint64
	misses               atomic.Uint64
	cachedLatencyNanos   atomic.Uint64
	cachedSamples        atomic.Uint64
	uncachedLatencyNanos atomic.Uint64
	uncachedSamples      atomic.Uint64
}

// New constructs a Cache. If c is nil, the real wall clock is used.
func New(cfg Config, c clock.Clock) *Cache {
	if cfg.Shards <= 0 {
		cfg.Shards = 32
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 10_000
	}
	if cfg.GlobalTTL <= 0 {
		cfg.GlobalTTL = 60 * time.Second
	}
	if cfg.Policy != PolicyLFU {
		cfg.Policy = PolicyLRU
	}
	if c == nil {
		c = clock.Real{}
	}

	perShardCap := cfg.MaxCapacity / cfg.Shards
	if perShardCap < 1 {
		perShardCap = 1
	}

	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*Entry), cap: perShardCap}
	}

	return &Cache{cfg: cfg, shards: shards, clock: c}
}

func compositeKey(namespace, key string) string { return namespace + "\x00" + key }

func (c *Cache) shardFor(composite string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(composite))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get looks up (namespace, key). A present-but-expired entry is treated as
// a miss and removed.
func (c *Cache) Get(namespace, key string) (any, bool) {
	composite := compositeKey(namespace, key)
	sh := c.shardFor(composite)
	now := c.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[composite]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if e.expired(now) {
		delete(sh.entries, composite)
		c.misses.Add(1)
		return nil, false
	}

	e.freqCounter++
	e.recencyRank = c.recencyCounter.Add(1)
	c.hits.Add(1)
	return e.Value, true
}

// Put inserts or replaces (namespace, key). If ttl is zero, GlobalTTL
// applies. When the owning shard is at its sub-capacity, one entry is
// evicted per Config.Policy before insertion.
func (c *Cache) Put(namespace, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.GlobalTTL
	}
	composite := compositeKey(namespace, key)
	sh := c.shardFor(composite)
	now := c.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.entries[composite]; !exists && len(sh.entries) >= sh.cap {
		if victim, ok := evictionCandidate(sh.entries, c.cfg.Policy); ok {
			delete(sh.entries, victim)
		}
	}

	sh.entries[composite] = &Entry{
		Namespace: namespace, Key: key, Value: value,
		insertedAt: now, expiresAt: now.Add(ttl),
		freqCounter: 1, recencyRank: c.recencyCounter.Add(1),
	}
}

// Invalidate removes (namespace, key) if present. Idempotent. After it
// returns, a concurrent Get for the same key observes a miss until the
// next Put.
func (c *Cache) Invalidate(namespace, key string) {
	composite := compositeKey(namespace, key)
	sh := c.shardFor(composite)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.entries, composite)
}

// RecordUncachedLatency feeds a sample of an uncached read's latency into
// the improvement-factor metric.
func (c *Cache) RecordUncachedLatency(d time.Duration) {
	c.uncachedLatencyNanos.Add(uint64(d.Nanoseconds()))
	c.uncachedSamples.Add(1)
}

// RecordCachedLatency feeds a sample of a cache-hit's service latency into
// the improvement-factor metric. Callers time their own Get; Get itself
// performs no I/O to measure.
func (c *Cache) RecordCachedLatency(d time.Duration) {
	c.cachedLatencyNanos.Add(uint64(d.Nanoseconds()))
	c.cachedSamples.Add(1)
}

// Len returns the total number of live (possibly not-yet-lazily-expired)
// entries across all shards, for diagnostics and tests.
func (c *Cache) Len() int {
	total := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}
