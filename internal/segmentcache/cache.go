// Package segmentcache implements the process-wide, unbounded map from
// segment path to open segment.Handle: the first caller to request a
// missing segment opens and recovers it; every other caller for the
// same path blocks on that one open, not on the whole cache.
package segmentcache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"sharedlog/internal/segment"
)

// Cache is a concurrent path -> *segment.Handle map with compute-if-
// absent open semantics. It never evicts on its own; entries only leave
// via Evict (after a compaction rewrite) or CloseAll.
type Cache struct {
	group   singleflight.Group
	handles sync.Map // string -> *segment.Handle
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{}
}

// GetOrOpen returns the cached handle for path, opening it with open if
// this is the first request for path. Concurrent callers for the same
// path share a single call to open via singleflight; callers for
// different paths never block each other.
func (c *Cache) GetOrOpen(path string, open func() (*segment.Handle, error)) (*segment.Handle, error) {
	if v, ok := c.handles.Load(path); ok {
		return v.(*segment.Handle), nil
	}

	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		if v, ok := c.handles.Load(path); ok {
			return v.(*segment.Handle), nil
		}
		h, err := open()
		if err != nil {
			return nil, err
		}
		c.handles.Store(path, h)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*segment.Handle), nil
}

// Evict closes and removes the cached handle for path, if any. The next
// GetOrOpen for path reopens and re-indexes it from disk. Used by
// Store.Compact after a compaction's atomic rename lands.
func (c *Cache) Evict(path string) {
	if v, ok := c.handles.LoadAndDelete(path); ok {
		_ = v.(*segment.Handle).Close()
	}
}

// Range visits every currently-open handle. f's return value controls
// whether iteration continues, mirroring sync.Map.Range.
func (c *Cache) Range(f func(path string, h *segment.Handle) bool) {
	c.handles.Range(func(k, v interface{}) bool {
		return f(k.(string), v.(*segment.Handle))
	})
}

// CloseAll closes every open handle and empties the cache.
func (c *Cache) CloseAll() error {
	var firstErr error
	c.handles.Range(func(k, v interface{}) bool {
		if err := v.(*segment.Handle).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.handles.Delete(k)
		return true
	})
	return firstErr
}
