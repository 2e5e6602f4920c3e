package cache

import (
	"github.com/ajitpratap0/sqlpool/pkg/deque"
)

// LinkedLruCache keeps entries in a LinkedDeque ordered from most to least
// recently used, with a map from key to node for O(1) lookup.
type LinkedLruCache[T any] struct {
	maxSize  int
	disposal Disposal[T]
	store    map[string]*deque.Node[keyedValue[T]]
	order    *deque.LinkedDeque[keyedValue[T]]
}

// NewLinkedLruCache creates a linked LRU cache holding at most maxSize entries.
func NewLinkedLruCache[T any](maxSize int, disposal Disposal[T]) (*LinkedLruCache[T], error) {
	if err := validateMaxSize(maxSize); err != nil {
		return nil, err
	}
	return newLinkedLruCache(maxSize, disposal), nil
}

func newLinkedLruCache[T any](maxSize int, disposal Disposal[T]) *LinkedLruCache[T] {
	return &LinkedLruCache[T]{
		maxSize:  maxSize,
		disposal: disposal,
		store:    make(map[string]*deque.Node[keyedValue[T]], maxSize),
		order:    deque.New[keyedValue[T]](),
	}
}

// Get returns the value for key and marks it most recently used. On a miss
// the supplied value is inserted at the front, evicting the least recently
// used entry if the cache is full.
func (c *LinkedLruCache[T]) Get(key string, supplier Supplier[T]) (T, error) {
	if n, ok := c.store[key]; ok {
		c.order.MoveToFront(n)
		return n.Value.value, nil
	}

	value, err := supplier()
	if err != nil {
		return value, err
	}
	c.insert(key, value)
	return value, nil
}

// Evict removes and disposes key.
func (c *LinkedLruCache[T]) Evict(key string) error {
	n, ok := c.store[key]
	if !ok {
		return notFound(key, len(c.store))
	}
	value := n.Value.value
	delete(c.store, key)
	c.order.Remove(n)
	c.disposal.dispose(value)
	return nil
}

// EvictAll disposes every entry from most to least recently used.
func (c *LinkedLruCache[T]) EvictAll() {
	c.store = make(map[string]*deque.Node[keyedValue[T]], c.maxSize)
	for {
		e, ok := c.order.PollFirst()
		if !ok {
			return
		}
		c.disposal.dispose(e.value)
	}
}

// ContainsKey reports whether key is cached.
func (c *LinkedLruCache[T]) ContainsKey(key string) bool {
	_, ok := c.store[key]
	return ok
}

// Len returns the number of cached entries.
func (c *LinkedLruCache[T]) Len() int {
	return len(c.store)
}

// Keys returns the cached keys from most to least recently used.
func (c *LinkedLruCache[T]) Keys() []string {
	keys := make([]string, 0, len(c.store))
	c.order.Each(func(e keyedValue[T]) {
		keys = append(keys, e.key)
	})
	return keys
}

func (c *LinkedLruCache[T]) insert(key string, value T) {
	if len(c.store) >= c.maxSize {
		if lru, ok := c.order.PollLast(); ok {
			delete(c.store, lru.key)
			c.disposal.dispose(lru.value)
		}
	}
	c.store[key] = c.order.PutFirst(keyedValue[T]{key: key, value: value})
}
