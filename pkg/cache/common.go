package cache

import (
	"github.com/ajitpratap0/sqlpool/pkg/errors"
)

// Mode identifies which backing store a CommonLruCache currently uses.
type Mode uint8

const (
	// ModeStamped is the initial, order-oblivious store.
	ModeStamped Mode = iota + 1
	// ModeLinked is the order-tracking store. It is terminal.
	ModeLinked
)

func (m Mode) String() string {
	switch m {
	case ModeStamped:
		return "stamped"
	case ModeLinked:
		return "linked"
	default:
		return "unknown"
	}
}

// CommonLruCache begins as a StampedCache and turns into a LinkedLruCache
// the first time a miss finds the stamped store full.
type CommonLruCache[T any] struct {
	mode     Mode
	maxSize  int
	disposal Disposal[T]

	stamped *StampedCache[T]
	linked  *LinkedLruCache[T]
}

// NewCommonLruCache creates an adaptive cache holding at most maxSize entries.
func NewCommonLruCache[T any](maxSize int, disposal Disposal[T]) (*CommonLruCache[T], error) {
	stamped, err := NewStampedCache(maxSize, disposal)
	if err != nil {
		return nil, err
	}
	return &CommonLruCache[T]{
		mode:     ModeStamped,
		maxSize:  maxSize,
		disposal: disposal,
		stamped:  stamped,
	}, nil
}

// Mode returns the current backing store.
func (c *CommonLruCache[T]) Mode() Mode {
	return c.mode
}

// Get returns the value for key, supplying it on a miss.
func (c *CommonLruCache[T]) Get(key string, supplier Supplier[T]) (T, error) {
	switch c.mode {
	case ModeStamped:
		if c.stamped.IsFull() && !c.stamped.ContainsKey(key) {
			value, err := supplier()
			if err != nil {
				return value, err
			}
			c.transform()
			c.linked.insert(key, value)
			return value, nil
		}
		return c.stamped.Get(key, supplier)
	case ModeLinked:
		return c.linked.Get(key, supplier)
	default:
		panic(c.unrecognized())
	}
}

// Evict removes and disposes key.
func (c *CommonLruCache[T]) Evict(key string) error {
	switch c.mode {
	case ModeStamped:
		return c.stamped.Evict(key)
	case ModeLinked:
		return c.linked.Evict(key)
	default:
		panic(c.unrecognized())
	}
}

// EvictAll removes and disposes every entry. The cache keeps its mode.
func (c *CommonLruCache[T]) EvictAll() {
	switch c.mode {
	case ModeStamped:
		c.stamped.EvictAll()
	case ModeLinked:
		c.linked.EvictAll()
	default:
		panic(c.unrecognized())
	}
}

// ContainsKey reports whether key is cached.
func (c *CommonLruCache[T]) ContainsKey(key string) bool {
	switch c.mode {
	case ModeStamped:
		return c.stamped.ContainsKey(key)
	case ModeLinked:
		return c.linked.ContainsKey(key)
	default:
		panic(c.unrecognized())
	}
}

// Len returns the number of cached entries.
func (c *CommonLruCache[T]) Len() int {
	switch c.mode {
	case ModeStamped:
		return c.stamped.Len()
	case ModeLinked:
		return c.linked.Len()
	default:
		panic(c.unrecognized())
	}
}

// transform moves the stamped entries into a linked cache, oldest stamp
// first, so the recency order observed so far carries over.
func (c *CommonLruCache[T]) transform() {
	linked := newLinkedLruCache(c.maxSize, c.disposal)
	for _, e := range c.stamped.entriesByStamp() {
		linked.insert(e.key, e.value)
	}
	c.linked = linked
	c.stamped = nil
	c.mode = ModeLinked
}

func (c *CommonLruCache[T]) unrecognized() *errors.Error {
	return errors.New(errors.ErrorTypeInternal, "unrecognized cache").
		WithDetail("mode", c.mode.String())
}
