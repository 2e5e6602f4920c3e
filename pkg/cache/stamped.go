package cache

import (
	"sort"
)

type stampedEntry[T any] struct {
	value T
	stamp uint64
}

type keyedValue[T any] struct {
	key   string
	value T
}

// StampedCache is a map-backed cache that records an access stamp per entry
// instead of maintaining an ordered list.
type StampedCache[T any] struct {
	maxSize  int
	disposal Disposal[T]
	store    map[string]*stampedEntry[T]
	clock    uint64
}

// NewStampedCache creates a stamped cache holding at most maxSize entries.
func NewStampedCache[T any](maxSize int, disposal Disposal[T]) (*StampedCache[T], error) {
	if err := validateMaxSize(maxSize); err != nil {
		return nil, err
	}
	return &StampedCache[T]{
		maxSize:  maxSize,
		disposal: disposal,
		store:    make(map[string]*stampedEntry[T], maxSize),
	}, nil
}

// Get returns the value for key, supplying and inserting it on a miss. When
// the store is full the entry with the oldest stamp is evicted first.
func (c *StampedCache[T]) Get(key string, supplier Supplier[T]) (T, error) {
	if e, ok := c.store[key]; ok {
		e.stamp = c.tick()
		return e.value, nil
	}

	value, err := supplier()
	if err != nil {
		return value, err
	}

	if len(c.store) >= c.maxSize {
		c.evictOldest()
	}
	c.store[key] = &stampedEntry[T]{value: value, stamp: c.tick()}
	return value, nil
}

// Evict removes and disposes key.
func (c *StampedCache[T]) Evict(key string) error {
	e, ok := c.store[key]
	if !ok {
		return notFound(key, len(c.store))
	}
	delete(c.store, key)
	c.disposal.dispose(e.value)
	return nil
}

// EvictAll disposes every entry, most recently used first.
func (c *StampedCache[T]) EvictAll() {
	entries := c.entriesByStamp()
	c.store = make(map[string]*stampedEntry[T], c.maxSize)
	for i := len(entries) - 1; i >= 0; i-- {
		c.disposal.dispose(entries[i].value)
	}
}

// ContainsKey reports whether key is cached.
func (c *StampedCache[T]) ContainsKey(key string) bool {
	_, ok := c.store[key]
	return ok
}

// Len returns the number of cached entries.
func (c *StampedCache[T]) Len() int {
	return len(c.store)
}

// IsFull reports whether the next miss would have to evict.
func (c *StampedCache[T]) IsFull() bool {
	return len(c.store) >= c.maxSize
}

func (c *StampedCache[T]) tick() uint64 {
	c.clock++
	return c.clock
}

func (c *StampedCache[T]) evictOldest() {
	var (
		oldestKey string
		oldest    *stampedEntry[T]
	)
	for k, e := range c.store {
		if oldest == nil || e.stamp < oldest.stamp {
			oldestKey, oldest = k, e
		}
	}
	if oldest == nil {
		return
	}
	delete(c.store, oldestKey)
	c.disposal.dispose(oldest.value)
}

// entriesByStamp returns the entries ordered least recently used first.
func (c *StampedCache[T]) entriesByStamp() []keyedValue[T] {
	type stamped struct {
		keyedValue[T]
		stamp uint64
	}
	all := make([]stamped, 0, len(c.store))
	for k, e := range c.store {
		all = append(all, stamped{keyedValue[T]{k, e.value}, e.stamp})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].stamp < all[j].stamp })

	out := make([]keyedValue[T], len(all))
	for i := range all {
		out[i] = all[i].keyedValue
	}
	return out
}
