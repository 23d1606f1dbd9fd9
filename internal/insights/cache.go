package insights

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// cacheEntry holds one cached Result alongside its expiry.
type cacheEntry struct {
	result  Result
	expires time.Time
}

// Cache is a TTL cache keyed by (insight_type, normalized_parameters), per
// spec.md §4.9. Modeled on internal/jobs/inmemory.Store's map-plus-mutex
// shape rather than reaching for an external cache library, since the
// teacher's own in-process job store already establishes that idiom for
// small, process-local state.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewCache builds a Cache. ttl<=0 defaults to 1h, per spec.md §4.9.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{entries: make(map[string]cacheEntry), ttl: ttl}
}

func cacheKey(insightType string, params map[string]any) string {
	normalized, _ := json.Marshal(sortedMap(params))
	sum := sha256.Sum256(append([]byte(insightType+"|"), normalized...))
	return hex.EncodeToString(sum[:])
}

// sortedMap copies params key by key in sorted order. The cache key does not
// depend on map iteration order because json.Marshal writes map keys
// sorted, so two calls with the same arguments hash to the same key.
func sortedMap(params map[string]any) map[string]any {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]any, len(params))
	for _, k := range keys {
		ordered[k] = params[k]
	}
	return ordered
}

// Get returns the cached Result for (insightType, params), if present and
// unexpired.
func (c *Cache) Get(insightType string, params map[string]any) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[cacheKey(insightType, params)]
	if !ok || time.Now().After(entry.expires) {
		return Result{}, false
	}
	return entry.result, true
}

// Set stores a Result under its (insightType, params) key with the cache's
// configured TTL.
func (c *Cache) Set(insightType string, params map[string]any, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(insightType, params)] = cacheEntry{result: result, expires: time.Now().Add(c.ttl)}
}

// Clear empties the cache, per spec.md §4.9's "a cache-clear operation must
// be supported".
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Sweep evicts every expired entry and returns how many were reclaimed, for
// the same background-reaper pattern the conversation Memory uses.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
