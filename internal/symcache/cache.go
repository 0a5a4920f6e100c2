// Package symcache keeps parsed build artifacts (symbol tables, address maps)
// keyed by a hash of the file content, so an unchanged ELF image or listing is
// parsed once no matter how often it is asked for.
package symcache

import (
	"container/list"
	"fmt"
	"strconv"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	"github.com/coral-mesh/mcudbg/internal/constants"
	"github.com/coral-mesh/mcudbg/internal/safe"
)

// Cache is a fixed-capacity LRU of parsed values.
type Cache[T any] struct {
	capacity int
	maxSize  int64

	mu      sync.Mutex
	items   map[uint64]*list.Element
	lruList *list.List
	group   singleflight.Group

	hits   int
	misses int
}

type entry[T any] struct {
	key   uint64
	value T
}

// New creates a cache holding at most capacity values. A non-positive capacity
// uses the default.
func New[T any](capacity int) *Cache[T] {
	if capacity <= 0 {
		capacity = constants.DefaultSymbolCacheSize
	}
	return &Cache[T]{
		capacity: capacity,
		maxSize:  constants.DefaultMaxImageSize,
		items:    make(map[uint64]*list.Element),
		lruList:  list.New(),
	}
}

// Key returns the cache key for content.
func Key(data []byte) uint64 {
	return xxh3.Hash(data)
}

// Get retrieves a value and marks it most recently used.
func (c *Cache[T]) Get(key uint64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lruList.MoveToFront(elem)
		c.hits++
		return elem.Value.(*entry[T]).value, true
	}
	c.misses++
	var zero T
	return zero, false
}

// Put stores value under key, evicting the least recently used value if full.
func (c *Cache[T]) Put(key uint64, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lruList.MoveToFront(elem)
		elem.Value.(*entry[T]).value = value
		return
	}

	c.items[key] = c.lruList.PushFront(&entry[T]{key: key, value: value})
	if c.lruList.Len() > c.capacity {
		oldest := c.lruList.Back()
		c.lruList.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[T]).key)
	}
}

// Len returns the number of cached values.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Stats returns the hit and miss counts.
func (c *Cache[T]) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Load reads path and returns parse's result for its content, reusing the
// cached value when the content has been parsed before. Concurrent loads of
// the same content share one parse. Parse errors are not cached.
func (c *Cache[T]) Load(path string, parse func(data []byte) (T, error)) (T, error) {
	var zero T

	data, err := safe.ReadFile(path, &safe.ReadOptions{MaxSize: c.maxSize})
	if err != nil {
		return zero, fmt.Errorf("failed to read %s: %w", path, err)
	}

	key := Key(data)
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		parsed, err := parse(data)
		if err != nil {
			return nil, err
		}
		c.Put(key, parsed)
		return parsed, nil
	})
	if err != nil {
		return zero, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return v.(T), nil
}
