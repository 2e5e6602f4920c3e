package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlpool/pkg/deque"
	"github.com/ajitpratap0/sqlpool/pkg/errors"
	"github.com/ajitpratap0/sqlpool/pkg/metrics"
)

// CommonObjectPool lends out up to MaxTotal objects made with MakeObject.
//
// Idle objects are kept in a LinkedDeque with the most recently returned at
// the front; borrowers take from the front and eviction scans from the back.
// Borrowers that find the pool saturated queue in arrival order. A returned
// object or a freed slot goes straight to the longest-waiting borrower, so a
// newcomer can never take it first.
type CommonObjectPool[K any, T PooledObject[K]] struct {
	lifecycle[T]
	scheduler Scheduler
	config    Configuration
	overflow  *SingleObjectPool[K, T]

	mu      sync.Mutex
	idle    *deque.LinkedDeque[T]
	waiters *deque.LinkedDeque[*waiter[T]]
	count   int
	tag     bool
	future  Cancellable

	closed atomic.Bool
}

type handoff int

const (
	handoffObject handoff = iota + 1
	handoffSlot
	handoffClosed
)

// waiter is a parked borrower. Whoever wakes it records what it was handed
// before closing ready.
type waiter[T any] struct {
	ready chan struct{}
	obj   T
	kind  handoff
}

// NewCommonObjectPool creates a bounded pool. scheduler may be nil only when
// eviction is disabled.
func NewCommonObjectPool[K any, T PooledObject[K]](factory ObjectFactory[T], scheduler Scheduler, config Configuration, opts ...Option) (*CommonObjectPool[K, T], error) {
	if err := validatePool(factory, scheduler, config); err != nil {
		return nil, err
	}

	p := &CommonObjectPool[K, T]{
		scheduler: scheduler,
		config:    config,
		idle:      deque.New[T](),
		waiters:   deque.New[*waiter[T]](),
	}
	p.lifecycle.init(factory, tierSecondary, opts)
	return p, nil
}

// WithOverflow makes saturated borrowers try overflow before waiting.
// Objects obtained this way report IsPrimary and go back to overflow on
// return. It must be called before the pool is shared.
func (p *CommonObjectPool[K, T]) WithOverflow(overflow *SingleObjectPool[K, T]) *CommonObjectPool[K, T] {
	p.overflow = overflow
	return p
}

// BorrowObject returns the most recently returned idle object, or a new one
// if the pool has room, waiting otherwise.
func (p *CommonObjectPool[K, T]) BorrowObject(ctx context.Context) (T, error) {
	return p.borrow(ctx, func(T) bool { return true })
}

// BorrowObjectWithKey behaves like BorrowObject but prefers the most recently
// returned idle object that matches key.
func (p *CommonObjectPool[K, T]) BorrowObjectWithKey(ctx context.Context, key K) (T, error) {
	return p.borrow(ctx, func(obj T) bool { return obj.Matches(key) })
}

// BorrowPrimaryObject borrows from the overflow pool. Without one it
// behaves like BorrowObject.
func (p *CommonObjectPool[K, T]) BorrowPrimaryObject(ctx context.Context) (T, error) {
	if p.overflow != nil {
		return p.overflow.BorrowObject(ctx)
	}
	return p.BorrowObject(ctx)
}

func (p *CommonObjectPool[K, T]) borrow(ctx context.Context, prefer func(T) bool) (T, error) {
	var zero T
	started := time.Now()
	triedOverflow := false

	p.mu.Lock()
	for !p.closed.Load() {
		obj, ok := p.idle.PollFirstMatching(prefer)
		if !ok {
			obj, ok = p.idle.PollFirst()
		}
		if ok {
			p.mu.Unlock()
			return p.activate(obj, started)
		}

		if p.count < p.config.MaxTotal {
			p.count++
			p.schedule()
			p.mu.Unlock()
			return p.create(started)
		}

		if p.overflow != nil && !triedOverflow {
			triedOverflow = true
			p.mu.Unlock()
			obj, ok, err := p.overflow.TryBorrowObject()
			if err != nil {
				p.logger.Debug("overflow borrow failed", zap.Error(err))
			} else if ok {
				p.recordBorrow(metrics.OutcomeOverflow, started)
				return obj, nil
			}
			p.mu.Lock()
			continue
		}

		w, err := p.await(ctx)
		if err != nil {
			p.recordBorrow(metrics.OutcomeCanceled, started)
			return zero, err
		}
		switch w.kind {
		case handoffObject:
			return p.activate(w.obj, started)
		case handoffSlot:
			return p.create(started)
		}
		p.mu.Lock()
	}
	p.mu.Unlock()

	p.recordBorrow(metrics.OutcomeClosed, started)
	return zero, errors.ErrPoolClosed
}

// activate hands out an idle object. An object that fails validation is
// destroyed and replaced in the same slot.
func (p *CommonObjectPool[K, T]) activate(obj T, started time.Time) (T, error) {
	if !p.factory.ValidateObject(obj) {
		p.logger.Debug("discarding invalid pooled object")
		p.destroy(obj)
		return p.create(started)
	}
	p.factory.ActivateObject(obj)
	p.recordBorrow(metrics.OutcomeIdle, started)
	return obj, nil
}

// create makes an object for a slot the caller already holds. On failure
// the slot is given up.
func (p *CommonObjectPool[K, T]) create(started time.Time) (T, error) {
	obj, err := p.make(false)
	if err != nil {
		var zero T
		p.mu.Lock()
		p.freeSlot()
		p.mu.Unlock()
		p.recordBorrow(metrics.OutcomeFailed, started)
		return zero, err
	}
	p.factory.ActivateObject(obj)
	p.recordBorrow(metrics.OutcomeCreated, started)
	return obj, nil
}

// await parks the caller at the front of the waiter queue until it is
// handed an object, a slot or the news that the pool closed. Called with mu
// held; returns with mu released.
func (p *CommonObjectPool[K, T]) await(ctx context.Context) (*waiter[T], error) {
	w := &waiter[T]{ready: make(chan struct{})}
	p.waiters.PutFirst(w)
	p.mu.Unlock()

	select {
	case <-w.ready:
		return w, nil
	case <-ctx.Done():
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, queued := p.waiters.PollFirstMatching(func(q *waiter[T]) bool { return q == w }); queued {
		return nil, ctx.Err()
	}
	// woken concurrently; pass on whatever was handed over
	switch w.kind {
	case handoffObject:
		p.putIdle(w.obj)
	case handoffSlot:
		p.freeSlot()
	case handoffClosed:
		return w, nil
	}
	return nil, ctx.Err()
}

// putIdle gives obj to the longest-waiting borrower, or parks it at the
// front of the idle set. Called with mu held.
func (p *CommonObjectPool[K, T]) putIdle(obj T) {
	if w, ok := p.waiters.PollLast(); ok {
		w.obj, w.kind = obj, handoffObject
		close(w.ready)
		return
	}
	p.idle.PutFirst(obj)
}

// freeSlot gives a slot to the longest-waiting borrower, or releases it.
// Called with mu held.
func (p *CommonObjectPool[K, T]) freeSlot() {
	if w, ok := p.waiters.PollLast(); ok {
		w.kind = handoffSlot
		close(w.ready)
		return
	}
	p.count--
}

// signalAll tells every waiting borrower the pool is closed. Called with mu
// held.
func (p *CommonObjectPool[K, T]) signalAll() {
	for {
		w, ok := p.waiters.PollLast()
		if !ok {
			return
		}
		w.kind = handoffClosed
		close(w.ready)
	}
}

// release destroys a borrowed object and frees its slot.
func (p *CommonObjectPool[K, T]) release(obj T) {
	p.mu.Lock()
	p.freeSlot()
	p.mu.Unlock()
	p.destroy(obj)
}

// ReturnObject passivates obj, stamps it with the current tag and puts it at
// the front of the idle set. Objects from the overflow pool go back there.
func (p *CommonObjectPool[K, T]) ReturnObject(obj T) {
	if obj.IsPrimary() && p.overflow != nil {
		p.overflow.ReturnObject(obj)
		return
	}

	p.factory.PassivateObject(obj)

	p.mu.Lock()
	obj.SetTag(p.tag)
	p.putIdle(obj)
	closed := p.closed.Load()
	p.mu.Unlock()

	if closed {
		p.evict(true)
	}
}

// Invalidate destroys a borrowed object instead of returning it, freeing
// its slot.
func (p *CommonObjectPool[K, T]) Invalidate(obj T) {
	if obj.IsPrimary() && p.overflow != nil {
		p.overflow.Invalidate(obj)
		return
	}
	p.release(obj)
	if p.closed.Load() {
		p.evict(true)
	}
}

// Evict runs one sweep. Idle objects are examined from least to most
// recently returned; those whose tag differs from the pool's are destroyed
// and the scan stops at the first one that matches. The pool's tag is then
// flipped. The sweep is skipped if another goroutine holds the pool lock.
func (p *CommonObjectPool[K, T]) Evict() {
	p.evict(false)
}

func (p *CommonObjectPool[K, T]) evict(wait bool) {
	if wait {
		p.mu.Lock()
	} else if !p.mu.TryLock() {
		return
	}

	p.swept()
	closed := p.closed.Load()
	if closed {
		p.signalAll()
	}
	if p.count == 0 {
		p.cancelSchedule()
		p.mu.Unlock()
		if closed {
			p.closeFactory()
		}
		return
	}

	var victims []T
	it := p.idle.ReverseMutableIterator()
	for it.HasNext() {
		obj, _ := it.Next()
		if !closed && obj.Tag() == p.tag {
			break
		}
		_ = it.Remove()
		victims = append(victims, obj)
		p.freeSlot()
	}
	p.tag = !p.tag
	remaining := p.count
	p.mu.Unlock()

	if len(victims) > 0 {
		p.logger.Debug("evicting idle objects",
			zap.Int("evicted", len(victims)),
			zap.Int("remaining", remaining))
	}
	for _, obj := range victims {
		p.destroy(obj)
	}
	if closed && remaining == 0 {
		p.closeFactory()
	}
}

// Clear with PriorityHigh destroys every idle object. PriorityLow runs one
// sweep, waiting for the lock if needed.
func (p *CommonObjectPool[K, T]) Clear(priority Priority) {
	if priority != PriorityHigh {
		p.evict(true)
		return
	}

	p.mu.Lock()
	victims := make([]T, 0, p.idle.Len())
	for {
		obj, ok := p.idle.PollLast()
		if !ok {
			break
		}
		victims = append(victims, obj)
		p.freeSlot()
	}
	if p.count == 0 {
		p.cancelSchedule()
	}
	p.mu.Unlock()

	for _, obj := range victims {
		p.destroy(obj)
	}
}

// Gauge reports idle objects and objects currently borrowed from this pool.
// The overflow pool is not included.
func (p *CommonObjectPool[K, T]) Gauge() Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()
	idle := p.idle.Len()
	return Gauge{Idle: idle, Active: p.count - idle}
}

// Close wakes every waiting borrower with errors.ErrPoolClosed and destroys
// idle objects. Borrowed objects are destroyed as they come back; the
// factory is closed once none are left. Close is idempotent and does not
// close the overflow pool.
func (p *CommonObjectPool[K, T]) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.logger.Debug("closing pool")
	p.evict(true)
	return nil
}

// IsClosed reports whether Close has been called.
func (p *CommonObjectPool[K, T]) IsClosed() bool {
	return p.closed.Load()
}

// schedule starts periodic eviction. Called with mu held.
func (p *CommonObjectPool[K, T]) schedule() {
	if p.future != nil || !p.config.EvictionEnabled() {
		return
	}
	p.future = p.scheduler.ScheduleAtFixedRate(p.Evict, p.config.EvictionDelay, p.config.EvictionInterval)
	p.logger.Debug("scheduled eviction",
		zap.Duration("delay", p.config.EvictionDelay),
		zap.Duration("interval", p.config.EvictionInterval))
}

// cancelSchedule stops periodic eviction. Called with mu held.
func (p *CommonObjectPool[K, T]) cancelSchedule() {
	if p.future != nil {
		p.future.Cancel()
		p.future = nil
	}
}

var _ ObjectPool[string, PooledObject[string]] = (*CommonObjectPool[string, PooledObject[string]])(nil)
