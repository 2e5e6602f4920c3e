// Package cache provides fixed-capacity string-keyed caches used to hold
// prepared statements per pooled connection.
//
// Three implementations share the Cache interface:
//
//   - StampedCache: a map whose entries carry an access stamp. Inserts and
//     hits are O(1); evicting the least-recently-used entry is an O(n) scan.
//   - LinkedLruCache: a map plus a LinkedDeque kept in recency order. Every
//     operation is O(1).
//   - CommonLruCache: starts stamped and switches to linked, once and for
//     good, the first time the stamped store is full on a miss. Caches that
//     never fill never pay for ordering.
//
// None of the caches are safe for concurrent use. A statement cache belongs
// to one connection and is only touched by whoever has borrowed it.
//
// Example:
//
//	statements, _ := cache.NewCommonLruCache[driver.Stmt](64, func(s driver.Stmt) { _ = s.Close() })
//	stmt, err := statements.Get(query, func() (driver.Stmt, error) {
//	    return conn.Prepare(query)
//	})
package cache

import (
	"github.com/ajitpratap0/sqlpool/pkg/errors"
)

// Disposal is invoked exactly once for every value leaving a cache.
type Disposal[T any] func(T)

// Supplier computes the value for a missing key. It is called at most once
// per miss; if it fails the cache is left unchanged.
type Supplier[T any] func() (T, error)

// Cache is a fixed-capacity string-keyed cache.
type Cache[T any] interface {
	// Get returns the cached value for key, calling supplier on a miss.
	Get(key string, supplier Supplier[T]) (T, error)
	// Evict removes and disposes key, failing with ErrNotFound if absent.
	Evict(key string) error
	// EvictAll removes and disposes every entry.
	EvictAll()
	// ContainsKey reports whether key is cached.
	ContainsKey(key string) bool
	// Len returns the number of cached entries.
	Len() int
}

func validateMaxSize(maxSize int) error {
	if maxSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "cache max size must be positive").
			WithDetail("max_size", maxSize)
	}
	return nil
}

func notFound(key string, size int) error {
	return errors.ErrNotFound.WithDetail("key", key).WithDetail("size", size)
}

func (d Disposal[T]) dispose(value T) {
	if d != nil {
		d(value)
	}
}

var (
	_ Cache[any] = (*StampedCache[any])(nil)
	_ Cache[any] = (*LinkedLruCache[any])(nil)
	_ Cache[any] = (*CommonLruCache[any])(nil)
)
