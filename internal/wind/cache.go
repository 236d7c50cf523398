package wind

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/balloon.report/internal/monitoring"
	"github.com/banshee-data/balloon.report/internal/timeutil"
)

// DefaultCacheTTL bounds how long a fetched wind series is reused.
const DefaultCacheTTL = 30 * time.Minute

// Key identifies a wind series by location, rounded to 0.1°, and pressure
// level.
type Key struct {
	Lat         float64
	Lon         float64
	PressureHpa float64
}

// NewKey rounds lat/lon so nearby requests share an entry.
func NewKey(lat, lon, pressureHpa float64) Key {
	return Key{Lat: round1(lat), Lon: round1(lon), PressureHpa: pressureHpa}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

type cacheEntry struct {
	series   []Sample
	storedAt time.Time
}

// Cache holds wind series for one application session. It is created by
// the session owner, shared by reference, and cleared on demand. A Cache is
// safe for concurrent use.
type Cache struct {
	ttl     time.Duration
	clock   timeutil.Clock
	metrics *monitoring.Collector

	mu      sync.RWMutex
	entries map[Key]cacheEntry
}

// NewCache returns an empty cache. A non-positive ttl selects
// DefaultCacheTTL; a nil clock selects the wall clock. metrics may be nil.
func NewCache(ttl time.Duration, clock timeutil.Clock, metrics *monitoring.Collector) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
		entries: make(map[Key]cacheEntry),
	}
}

// Get returns a copy of the cached series for k if it has not expired.
func (c *Cache) Get(k Key) ([]Sample, bool) {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if ok && c.clock.Since(e.storedAt) > c.ttl {
		ok = false
		c.mu.Lock()
		if cur, still := c.entries[k]; still && cur.storedAt.Equal(e.storedAt) {
			delete(c.entries, k)
		}
		c.mu.Unlock()
	}
	c.metrics.ObserveWindCache(ok)
	if !ok {
		return nil, false
	}
	out := make([]Sample, len(e.series))
	copy(out, e.series)
	return out, true
}

// Put stores a copy of series under k.
func (c *Cache) Put(k Key, series []Sample) {
	stored := make([]Sample, len(series))
	copy(stored, series)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = cacheEntry{series: stored, storedAt: c.clock.Now()}
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[Key]cacheEntry)
	return n
}

// Len returns the number of entries, including expired ones not yet
// evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
