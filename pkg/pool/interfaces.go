package pool

import (
	"context"
)

// PooledObject is implemented by objects managed by a pool.
type PooledObject[K any] interface {
	// IsPrimary reports whether the object belongs to the primary tier.
	IsPrimary() bool
	// Tag returns the eviction tag last assigned by the pool.
	Tag() bool
	// SetTag is called by the pool when the object is returned.
	SetTag(tag bool)
	// Matches reports whether the object is a preferred fit for key.
	Matches(key K) bool
}

// ObjectFactory creates and destroys pooled objects and is told about their
// lifecycle transitions. A pool calls Close once, after it is closed and
// every object it made has been destroyed; pools built together by
// NewTieredPool call it once between them. Independent pools sharing a
// factory each close it, so Close should be idempotent.
type ObjectFactory[T any] interface {
	MakeObject() (T, error)
	MakePrimaryObject() (T, error)
	// ActivateObject is called on every successful borrow.
	ActivateObject(obj T)
	// PassivateObject is called on every return, before the object is idle.
	PassivateObject(obj T)
	// ValidateObject is called before an idle object is handed out again.
	// Invalid objects are destroyed.
	ValidateObject(obj T) bool
	DestroyObject(obj T) error
	Gauge() Gauge
	Close() error
}

// ObjectPool is the common surface of every pool in this package.
type ObjectPool[K any, T PooledObject[K]] interface {
	// BorrowObject blocks until any object is available.
	BorrowObject(ctx context.Context) (T, error)
	// BorrowObjectWithKey prefers an idle object matching key.
	BorrowObjectWithKey(ctx context.Context, key K) (T, error)
	// BorrowPrimaryObject borrows from the primary tier.
	BorrowPrimaryObject(ctx context.Context) (T, error)
	// ReturnObject gives a borrowed object back. It never blocks on other
	// borrowers.
	ReturnObject(obj T)
	// Invalidate destroys a borrowed object instead of returning it.
	Invalidate(obj T)
	// Clear releases idle objects. See Priority.
	Clear(priority Priority)
	Gauge() Gauge
	// Close shuts the pool down. It is idempotent.
	Close() error
}

// Gauge is a point-in-time view of a pool or factory.
type Gauge struct {
	Idle   int `json:"idle"`
	Active int `json:"active"`
}

// Add returns the element-wise sum of g and o.
func (g Gauge) Add(o Gauge) Gauge {
	return Gauge{Idle: g.Idle + o.Idle, Active: g.Active + o.Active}
}

// Total returns the number of live objects.
func (g Gauge) Total() int {
	return g.Idle + g.Active
}

// Priority selects how aggressively Clear releases idle objects.
type Priority int

const (
	// PriorityLow runs one eviction sweep, so only objects that were
	// already idle at the previous sweep go away.
	PriorityLow Priority = iota
	// PriorityHigh destroys every idle object immediately.
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// BaseObjectFactory provides no-op lifecycle hooks. Embed it and implement
// the remaining methods.
type BaseObjectFactory[T any] struct{}

// ActivateObject does nothing.
func (BaseObjectFactory[T]) ActivateObject(T) {}

// PassivateObject does nothing.
func (BaseObjectFactory[T]) PassivateObject(T) {}

// ValidateObject accepts every object.
func (BaseObjectFactory[T]) ValidateObject(T) bool { return true }
