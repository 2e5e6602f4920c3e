package pool

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlpool/pkg/metrics"
)

const (
	tierPrimary   = "primary"
	tierSecondary = "secondary"
)

// lifecycle wraps the factory calls shared by every pool with logging and
// metrics.
type lifecycle[T any] struct {
	factory ObjectFactory[T]
	logger  *zap.Logger
	name    string
	tier    string

	closer  *factoryCloser
	drained atomic.Bool
}

// factoryCloser closes a factory once every pool sharing it has drained.
type factoryCloser struct {
	pending atomic.Int32
	closed  atomic.Bool
}

func newFactoryCloser(pools int) *factoryCloser {
	c := &factoryCloser{}
	c.pending.Store(int32(pools))
	return c
}

func (l *lifecycle[T]) init(factory ObjectFactory[T], tier string, opts []Option) {
	o := newOptions(tier, opts)
	l.factory = factory
	l.logger = o.logger
	l.name = o.name
	l.tier = tier
	l.closer = o.closer
	if l.closer == nil {
		l.closer = newFactoryCloser(1)
	}
}

func (l *lifecycle[T]) make(primary bool) (T, error) {
	var (
		obj T
		err error
	)
	if primary {
		obj, err = l.factory.MakePrimaryObject()
	} else {
		obj, err = l.factory.MakeObject()
	}
	if err != nil {
		l.logger.Warn("failed to create pooled object", zap.Error(err))
		return obj, err
	}
	metrics.ObjectsCreated.WithLabelValues(l.name, l.tier).Inc()
	l.logger.Debug("created pooled object")
	return obj, nil
}

func (l *lifecycle[T]) destroy(obj T) {
	metrics.ObjectsDestroyed.WithLabelValues(l.name, l.tier).Inc()
	if err := l.factory.DestroyObject(obj); err != nil {
		l.logger.Warn("failed to destroy pooled object", zap.Error(err))
		return
	}
	l.logger.Debug("destroyed pooled object")
}

// closeFactory reports that this pool is closed and empty. The factory is
// closed by the last pool sharing it to drain.
func (l *lifecycle[T]) closeFactory() {
	if !l.drained.CompareAndSwap(false, true) {
		return
	}
	if l.closer.pending.Add(-1) > 0 {
		l.logger.Debug("pool drained, factory still shared")
		return
	}
	if !l.closer.closed.CompareAndSwap(false, true) {
		return
	}
	if err := l.factory.Close(); err != nil {
		l.logger.Warn("failed to close object factory", zap.Error(err))
		return
	}
	l.logger.Debug("closed object factory")
}

func (l *lifecycle[T]) recordBorrow(outcome string, started time.Time) {
	metrics.Borrows.WithLabelValues(l.name, l.tier, outcome).Inc()
	metrics.BorrowWait.WithLabelValues(l.name, l.tier).Observe(time.Since(started).Seconds())
}

func (l *lifecycle[T]) swept() {
	metrics.EvictionRuns.WithLabelValues(l.name, l.tier).Inc()
}
