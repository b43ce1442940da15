// Package memcache holds decoded images in memory, bounded by the total byte
// footprint of the images rather than by an entry count.
package memcache

import (
	"math"
	"sync"

	"imagefetch/impl/metrics"
	"imagefetch/types"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCapacity is used when a non-positive capacity is passed to New.
const DefaultCapacity = 64 * 1024 * 1024

// Cache is a least-recently-used map of cache key to decoded image. It is safe for
// concurrent use. Every operation is synchronous and does no I/O.
type Cache struct {
	sync.Mutex
	lru      *simplelru.LRU[string, *types.DecodedImage]
	capacity int64
	size     int64
}

// New returns a cache that holds at most capacity bytes of decoded images.
func New(capacity int64) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{capacity: capacity}
	// the entry count is effectively unbounded: eviction is driven by size
	lru, _ := simplelru.NewLRU[string, *types.DecodedImage](math.MaxInt32, c.onEvict)
	c.lru = lru
	return c
}

// onEvict is called by the LRU with the lock held whenever an entry leaves the cache.
func (c *Cache) onEvict(_ string, img *types.DecodedImage) {
	c.size -= img.Bytes
	metrics.DeltaMemoryBytes(float64(-img.Bytes))
}

// Get returns the image for the passed key and marks it most recently used.
func (c *Cache) Get(key string) (*types.DecodedImage, bool) {
	c.Lock()
	defer c.Unlock()
	return c.lru.Get(key)
}

// Put stores the image under the passed key, evicting least recently used entries until
// the footprint fits the capacity. An image larger than the whole capacity is not
// stored, and any previous value for the key is dropped.
func (c *Cache) Put(key string, img *types.DecodedImage) {
	if img == nil {
		return
	}
	c.Lock()
	defer c.Unlock()
	if img.Bytes > c.capacity {
		c.lru.Remove(key)
		return
	}
	// Add on an existing key does not fire the eviction callback
	if old, ok := c.lru.Peek(key); ok {
		c.size -= old.Bytes
		metrics.DeltaMemoryBytes(float64(-old.Bytes))
	}
	c.lru.Add(key, img)
	c.size += img.Bytes
	metrics.DeltaMemoryBytes(float64(img.Bytes))
	for c.size > c.capacity {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.Lock()
	defer c.Unlock()
	c.lru.Purge()
}

// Len returns the number of cached images.
func (c *Cache) Len() int {
	c.Lock()
	defer c.Unlock()
	return c.lru.Len()
}

// Size returns the total byte footprint of the cached images.
func (c *Cache) Size() int64 {
	c.Lock()
	defer c.Unlock()
	return c.size
}

// Capacity returns the configured byte bound.
func (c *Cache) Capacity() int64 {
	return c.capacity
}
