package dataloader

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/tsawler/go-segloader/vision/preprocessing"
)

// SampleCache is an LRU cache of decoded samples keyed by image path.
// Cached samples are shared and must be treated as read-only.
type SampleCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	lru     *list.List
	maxSize int

	hits   int64
	misses int64
}

type cacheEntry struct {
	key    string
	sample *preprocessing.Sample
}

// NewSampleCache creates a cache holding at most maxSize samples
func NewSampleCache(maxSize int) *SampleCache {
	return &SampleCache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

// Get retrieves a sample and marks it most recently used
func (c *SampleCache) Get(key string) (*preprocessing.Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		c.hits++
		return elem.Value.(*cacheEntry).sample, true
	}
	c.misses++
	return nil, false
}

// Put stores a sample, evicting the least recently used ones over capacity
func (c *SampleCache) Put(key string, sample *preprocessing.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).sample = sample
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, sample: sample})
	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached samples
func (c *SampleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear drops all samples. Statistics are kept.
func (c *SampleCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

// ResetStats zeroes the hit and miss counters
func (c *SampleCache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics
func (c *SampleCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total) * 100
	}
	return stats
}

// CacheStats holds cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
	HitRate float64
}

func (cs CacheStats) String() string {
	return fmt.Sprintf("Cache: %d/%d samples, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		cs.Size, cs.MaxSize, cs.Hits, cs.Misses, cs.HitRate)
}
