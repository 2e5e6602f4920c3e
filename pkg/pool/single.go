package pool

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ajitpratap0/sqlpool/pkg/errors"
	"github.com/ajitpratap0/sqlpool/pkg/metrics"
)

// SingleObjectPool lends out at most one object, created lazily with
// MakePrimaryObject. Borrowers queue on a FIFO binary semaphore; holding
// the permit is holding the object.
type SingleObjectPool[K any, T PooledObject[K]] struct {
	lifecycle[T]
	scheduler Scheduler
	config    Configuration

	sem           *semaphore.Weighted
	closed        atomic.Bool
	closing       context.Context
	cancelClosing context.CancelFunc

	// guarded by sem
	obj      T
	present  bool
	canEvict bool
	future   Cancellable

	live  atomic.Bool
	inUse atomic.Bool
}

// NewSingleObjectPool creates a single-object pool. MaxTotal in config is
// ignored; scheduler may be nil only when eviction is disabled.
func NewSingleObjectPool[K any, T PooledObject[K]](factory ObjectFactory[T], scheduler Scheduler, config Configuration, opts ...Option) (*SingleObjectPool[K, T], error) {
	config.MaxTotal = 1
	if err := validatePool(factory, scheduler, config); err != nil {
		return nil, err
	}

	p := &SingleObjectPool[K, T]{
		scheduler: scheduler,
		config:    config,
		sem:       semaphore.NewWeighted(1),
	}
	p.lifecycle.init(factory, tierPrimary, opts)
	p.closing, p.cancelClosing = context.WithCancel(context.Background())
	return p, nil
}

func validatePool[T any](factory ObjectFactory[T], scheduler Scheduler, config Configuration) error {
	if factory == nil {
		return errors.New(errors.ErrorTypeConfig, "object factory is required")
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if scheduler == nil && config.EvictionEnabled() {
		return errors.New(errors.ErrorTypeConfig, "scheduler is required when eviction is enabled").
			WithDetail("eviction_interval", config.EvictionInterval.String())
	}
	return nil
}

// BorrowObject waits for the object, creating it if needed. It fails with
// errors.ErrPoolClosed if the pool is closed before or while waiting, and
// with ctx.Err() if ctx is done first.
func (p *SingleObjectPool[K, T]) BorrowObject(ctx context.Context) (T, error) {
	var zero T
	started := time.Now()

	if err := p.acquire(ctx); err != nil {
		if errors.Is(err, errors.ErrPoolClosed) {
			p.recordBorrow(metrics.OutcomeClosed, started)
		} else {
			p.recordBorrow(metrics.OutcomeCanceled, started)
		}
		return zero, err
	}

	outcome := metrics.OutcomeIdle
	if !p.present {
		outcome = metrics.OutcomeCreated
	}
	obj, err := p.take()
	if err != nil {
		p.recordBorrow(metrics.OutcomeFailed, started)
		return zero, err
	}
	p.recordBorrow(outcome, started)
	return obj, nil
}

// BorrowObjectWithKey ignores key; there is only one object.
func (p *SingleObjectPool[K, T]) BorrowObjectWithKey(ctx context.Context, _ K) (T, error) {
	return p.BorrowObject(ctx)
}

// BorrowPrimaryObject is BorrowObject.
func (p *SingleObjectPool[K, T]) BorrowPrimaryObject(ctx context.Context) (T, error) {
	return p.BorrowObject(ctx)
}

// TryBorrowObject borrows the object only if nobody holds it. ok is false
// when the object is taken or the pool is closed.
func (p *SingleObjectPool[K, T]) TryBorrowObject() (obj T, ok bool, err error) {
	if p.closed.Load() || !p.sem.TryAcquire(1) {
		return obj, false, nil
	}
	if p.closed.Load() {
		p.release()
		return obj, false, nil
	}
	if obj, err = p.take(); err != nil {
		return obj, false, err
	}
	return obj, true, nil
}

// ReturnObject passivates obj and releases it to the next borrower. If the
// pool has been closed meanwhile the object is destroyed.
func (p *SingleObjectPool[K, T]) ReturnObject(obj T) {
	p.factory.PassivateObject(obj)
	p.inUse.Store(false)
	p.release()
}

// Invalidate destroys a borrowed object instead of returning it. The next
// borrower gets a new one.
func (p *SingleObjectPool[K, T]) Invalidate(T) {
	p.inUse.Store(false)
	if p.present {
		p.discard()
	}
	p.release()
}

// Evict runs one sweep: an object idle since the previous sweep is
// destroyed, otherwise it is marked. The sweep is skipped while the object
// is borrowed. After Close the object is destroyed regardless and the
// factory is closed.
func (p *SingleObjectPool[K, T]) Evict() {
	if !p.sem.TryAcquire(1) {
		return
	}
	defer p.sem.Release(1)

	p.swept()
	closed := p.closed.Load()
	if p.present {
		if p.canEvict || closed {
			p.discard()
		} else {
			p.canEvict = true
		}
	}
	if closed {
		p.closeFactory()
	}
}

// Clear with PriorityHigh destroys the object if it is idle. PriorityLow
// runs one sweep.
func (p *SingleObjectPool[K, T]) Clear(priority Priority) {
	if priority != PriorityHigh {
		p.Evict()
		return
	}
	if !p.sem.TryAcquire(1) {
		return
	}
	if p.present {
		p.discard()
	}
	p.release()
}

// Gauge reports the object as idle, active or absent.
func (p *SingleObjectPool[K, T]) Gauge() Gauge {
	switch {
	case p.inUse.Load():
		return Gauge{Active: 1}
	case p.live.Load():
		return Gauge{Idle: 1}
	default:
		return Gauge{}
	}
}

// Close wakes blocked borrowers with errors.ErrPoolClosed and destroys the
// object now if idle, or when it is returned otherwise.
func (p *SingleObjectPool[K, T]) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.logger.Debug("closing pool")
	p.cancelClosing()
	p.Evict()
	return nil
}

// IsClosed reports whether Close has been called.
func (p *SingleObjectPool[K, T]) IsClosed() bool {
	return p.closed.Load()
}

func (p *SingleObjectPool[K, T]) acquire(ctx context.Context) error {
	if p.closed.Load() {
		return errors.ErrPoolClosed
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.closing, cancel)
	defer stop()

	err := p.sem.Acquire(waitCtx, 1)
	if p.closed.Load() {
		if err == nil {
			p.release()
		}
		return errors.ErrPoolClosed
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// release gives the permit back. Whoever releases after Close finishes the
// shutdown, since Close itself cannot wait for the permit.
func (p *SingleObjectPool[K, T]) release() {
	p.sem.Release(1)
	if p.closed.Load() {
		p.Evict()
	}
}

// take hands out the object. The caller holds the permit.
func (p *SingleObjectPool[K, T]) take() (T, error) {
	p.canEvict = false
	if !p.present {
		obj, err := p.make(true)
		if err != nil {
			p.release()
			return obj, err
		}
		p.obj, p.present = obj, true
		p.live.Store(true)
		p.schedule()
	}
	p.inUse.Store(true)
	p.factory.ActivateObject(p.obj)
	return p.obj, nil
}

func (p *SingleObjectPool[K, T]) schedule() {
	if p.future != nil || !p.config.EvictionEnabled() {
		return
	}
	p.future = p.scheduler.ScheduleAtFixedRate(p.Evict, p.config.EvictionDelay, p.config.EvictionInterval)
	p.logger.Debug("scheduled eviction",
		zap.Duration("delay", p.config.EvictionDelay),
		zap.Duration("interval", p.config.EvictionInterval))
}

// discard destroys the object. The caller holds the permit.
func (p *SingleObjectPool[K, T]) discard() {
	var zero T
	obj := p.obj
	p.obj, p.present, p.canEvict = zero, false, false
	p.live.Store(false)
	if p.future != nil {
		p.future.Cancel()
		p.future = nil
	}
	p.destroy(obj)
}

var _ ObjectPool[string, PooledObject[string]] = (*SingleObjectPool[string, PooledObject[string]])(nil)
