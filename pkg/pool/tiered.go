package pool

import (
	"context"

	"go.uber.org/multierr"
)

// TieredObjectPool fronts a primary SingleObjectPool and a secondary pool.
// Plain and keyed borrows go to the secondary, BorrowPrimaryObject to the
// primary, and returned objects are routed by IsPrimary.
type TieredObjectPool[K any, T PooledObject[K]] struct {
	primary   *SingleObjectPool[K, T]
	secondary ObjectPool[K, T]
}

// NewTieredObjectPool combines two existing pools.
func NewTieredObjectPool[K any, T PooledObject[K]](primary *SingleObjectPool[K, T], secondary ObjectPool[K, T]) *TieredObjectPool[K, T] {
	return &TieredObjectPool[K, T]{
		primary:   primary,
		secondary: secondary,
	}
}

// NewTieredPool builds a primary SingleObjectPool and a secondary
// CommonObjectPool over one factory. Saturated secondary borrowers fall back
// to the primary object when it is free. The factory is closed once, after
// both tiers are closed and every object has been destroyed.
func NewTieredPool[K any, T PooledObject[K]](factory ObjectFactory[T], scheduler Scheduler, config Configuration, opts ...Option) (*TieredObjectPool[K, T], error) {
	opts = append(opts[:len(opts):len(opts)], withFactoryCloser(newFactoryCloser(2)))
	primary, err := NewSingleObjectPool[K, T](factory, scheduler, config, opts...)
	if err != nil {
		return nil, err
	}
	secondary, err := NewCommonObjectPool[K, T](factory, scheduler, config, opts...)
	if err != nil {
		return nil, err
	}
	return NewTieredObjectPool[K, T](primary, secondary.WithOverflow(primary)), nil
}

// BorrowObject borrows from the secondary pool.
func (p *TieredObjectPool[K, T]) BorrowObject(ctx context.Context) (T, error) {
	return p.secondary.BorrowObject(ctx)
}

// BorrowObjectWithKey borrows from the secondary pool, preferring key.
func (p *TieredObjectPool[K, T]) BorrowObjectWithKey(ctx context.Context, key K) (T, error) {
	return p.secondary.BorrowObjectWithKey(ctx, key)
}

// BorrowPrimaryObject borrows the primary object.
func (p *TieredObjectPool[K, T]) BorrowPrimaryObject(ctx context.Context) (T, error) {
	return p.primary.BorrowObject(ctx)
}

// ReturnObject routes obj back to the tier it came from.
func (p *TieredObjectPool[K, T]) ReturnObject(obj T) {
	if obj.IsPrimary() {
		p.primary.ReturnObject(obj)
		return
	}
	p.secondary.ReturnObject(obj)
}

// Invalidate destroys obj in the tier it came from.
func (p *TieredObjectPool[K, T]) Invalidate(obj T) {
	if obj.IsPrimary() {
		p.primary.Invalidate(obj)
		return
	}
	p.secondary.Invalidate(obj)
}

// Clear clears the primary tier, then the secondary.
func (p *TieredObjectPool[K, T]) Clear(priority Priority) {
	p.primary.Clear(priority)
	p.secondary.Clear(priority)
}

// Gauge sums both tiers.
func (p *TieredObjectPool[K, T]) Gauge() Gauge {
	return p.primary.Gauge().Add(p.secondary.Gauge())
}

// Close closes the secondary tier, then the primary.
func (p *TieredObjectPool[K, T]) Close() error {
	return multierr.Combine(
		p.secondary.Close(),
		p.primary.Close(),
	)
}

// Primary returns the primary tier.
func (p *TieredObjectPool[K, T]) Primary() *SingleObjectPool[K, T] {
	return p.primary
}

// Secondary returns the secondary tier.
func (p *TieredObjectPool[K, T]) Secondary() ObjectPool[K, T] {
	return p.secondary
}

var _ ObjectPool[string, PooledObject[string]] = (*TieredObjectPool[string, PooledObject[string]])(nil)
