package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ajitpratap0/sqlpool/pkg/errors"
	"github.com/ajitpratap0/sqlpool/pkg/testutil"
)

func newCommon(t *testing.T, f *testFactory, s Scheduler, cfg Configuration) *CommonObjectPool[string, *testObject] {
	t.Helper()
	p, err := NewCommonObjectPool[string, *testObject](f, s, cfg, WithLogger(testutil.TestLogger(t)), WithName(t.Name()))
	require.NoError(t, err)
	return p
}

func TestNewCommonObjectPool_Validation(t *testing.T) {
	f := newTestFactory()

	_, err := NewCommonObjectPool[string, *testObject](f, nil, plainConfig(0))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = NewCommonObjectPool[string, *testObject](f, nil, evictingConfig(1))
	require.Error(t, err, "eviction without a scheduler")

	_, err = NewCommonObjectPool[string, *testObject](nil, nil, plainConfig(1))
	require.Error(t, err)

	_, err = NewCommonObjectPool[string, *testObject](f, nil, plainConfig(1))
	require.NoError(t, err)
}

func TestCommonObjectPool_ReusesMostRecentlyReturned(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(3))
	ctx := context.Background()

	a, err := p.BorrowObject(ctx)
	require.NoError(t, err)
	b, err := p.BorrowObject(ctx)
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	p.ReturnObject(a)
	p.ReturnObject(b)
	assert.Equal(t, Gauge{Idle: 2}, p.Gauge())

	got, err := p.BorrowObject(ctx)
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.Equal(t, 2, f.createdCount())
	assert.Equal(t, Gauge{Idle: 1, Active: 1}, p.Gauge())
	assert.Equal(t, int32(3), f.activated.Load())
	assert.Equal(t, int32(2), f.passivated.Load())
}

func TestCommonObjectPool_KeyedBorrow(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(2))
	ctx := context.Background()

	a, _ := p.BorrowObject(ctx)
	b, _ := p.BorrowObject(ctx)
	a.keys["select 1"] = true

	p.ReturnObject(a)
	p.ReturnObject(b)

	got, err := p.BorrowObjectWithKey(ctx, "select 1")
	require.NoError(t, err)
	assert.Same(t, a, got, "matching object preferred over the front")

	got2, err := p.BorrowObjectWithKey(ctx, "select 2")
	require.NoError(t, err)
	assert.Same(t, b, got2, "falls back to any idle object")
}

// A saturated pool blocks the next borrower until an object comes back and
// then hands over that same object.
func TestCommonObjectPool_BlocksWhenSaturated(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(2))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	a, err := p.BorrowObject(ctx)
	require.NoError(t, err)
	_, err = p.BorrowObject(ctx)
	require.NoError(t, err)

	done := make(chan borrowResult, 1)
	go func() {
		obj, err := p.BorrowObject(ctx)
		done <- borrowResult{obj, err}
	}()
	testutil.AssertBlocked(t, done, 50*time.Millisecond, "third borrower")

	p.ReturnObject(a)
	res := testutil.Receive(t, done, time.Second, "third borrower")
	require.NoError(t, res.err)
	assert.Same(t, a, res.obj)
	assert.Equal(t, 2, f.createdCount())
}

// Closing the pool wakes a blocked borrower with ErrPoolClosed, and a
// late return is destroyed rather than reused.
func TestCommonObjectPool_CloseWakesWaiters(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(1))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	a, err := p.BorrowObject(ctx)
	require.NoError(t, err)

	done := make(chan borrowResult, 1)
	go func() {
		obj, err := p.BorrowObject(ctx)
		done <- borrowResult{obj, err}
	}()
	testutil.AssertEventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.waiters.Len() == 1
	}, time.Second, "borrower queued")

	require.NoError(t, p.Close())
	res := testutil.Receive(t, done, time.Second, "woken borrower")
	assert.True(t, errors.Is(res.err, errors.ErrPoolClosed))
	assert.Equal(t, 0, f.closeCount(), "factory stays open while an object is out")

	p.ReturnObject(a)
	assert.Equal(t, []*testObject{a}, f.destroyedObjects())
	assert.Equal(t, 1, f.closeCount())
	assert.Equal(t, Gauge{}, p.Gauge())

	_, err = p.BorrowObject(ctx)
	assert.True(t, errors.Is(err, errors.ErrPoolClosed))
}

func TestCommonObjectPool_CloseIsIdempotent(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(2))

	a, _ := p.BorrowObject(context.Background())
	p.ReturnObject(a)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, p.IsClosed())
	assert.Len(t, f.destroyedObjects(), 1)
	assert.Equal(t, 1, f.closeCount())
}

func TestCommonObjectPool_WaitersServedInArrivalOrder(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(1))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	a, _ := p.BorrowObject(ctx)

	order := make(chan int, 2)
	var wg sync.WaitGroup
	for i := 1; i <= 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := p.BorrowObject(ctx)
			if err != nil {
				return
			}
			order <- i
			p.ReturnObject(obj)
		}()
		testutil.AssertEventually(t, func() bool {
			p.mu.Lock()
			defer p.mu.Unlock()
			return p.waiters.Len() == i
		}, time.Second, fmt.Sprintf("waiter %d queued", i))
	}

	p.ReturnObject(a)
	wg.Wait()
	close(order)

	var got []int
	for i := range order {
		got = append(got, i)
	}
	assert.Equal(t, []int{1, 2}, got)
}

// An object returned while borrowers are queued belongs to the oldest of
// them; a borrower arriving at the same moment queues behind.
func TestCommonObjectPool_ReturnedObjectGoesToOldestWaiter(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(1))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	a, _ := p.BorrowObject(ctx)

	served := make(chan int, 2)
	hold := make(chan struct{})
	var wg sync.WaitGroup
	for i := 1; i <= 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := p.BorrowObject(ctx)
			if err != nil {
				return
			}
			served <- i
			<-hold
			p.ReturnObject(obj)
		}()
		testutil.AssertEventually(t, func() bool {
			p.mu.Lock()
			defer p.mu.Unlock()
			return p.waiters.Len() == i
		}, time.Second, fmt.Sprintf("waiter %d queued", i))
	}

	p.ReturnObject(a)
	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()
	_, err := p.BorrowObject(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "late borrower must not take the returned object")
	assert.Equal(t, 1, testutil.Receive(t, served, time.Second, "first waiter"))

	close(hold)
	assert.Equal(t, 2, testutil.Receive(t, served, time.Second, "second waiter"))
	wg.Wait()
	assert.Equal(t, 1, f.createdCount())
	assert.Equal(t, Gauge{Idle: 1}, p.Gauge())
}

// A slot freed by an invalidated object is handed to the waiter, which
// creates its own object.
func TestCommonObjectPool_InvalidateHandsSlotToWaiter(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(1))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	a, _ := p.BorrowObject(ctx)
	done := make(chan borrowResult, 1)
	go func() {
		obj, err := p.BorrowObject(ctx)
		done <- borrowResult{obj, err}
	}()
	testutil.AssertEventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.waiters.Len() == 1
	}, time.Second, "borrower queued")

	p.Invalidate(a)
	res := testutil.Receive(t, done, time.Second, "waiting borrower")
	require.NoError(t, res.err)
	assert.NotSame(t, a, res.obj)
	assert.Equal(t, Gauge{Active: 1}, p.Gauge())
}

// Closing the pool while a saturated borrower is trying the overflow pool
// must not leave that borrower parked.
func TestCommonObjectPool_CloseDuringOverflowAttempt(t *testing.T) {
	f := newTestFactory()
	var (
		p    *CommonObjectPool[string, *testObject]
		once sync.Once
	)
	closeOnFailure := zap.Hooks(func(e zapcore.Entry) error {
		if e.Message == "failed to create pooled object" {
			once.Do(func() { _ = p.Close() })
		}
		return nil
	})
	single, err := NewSingleObjectPool[string, *testObject](f, nil, plainConfig(1),
		WithLogger(testutil.TestLogger(t).WithOptions(closeOnFailure)))
	require.NoError(t, err)
	p = newCommon(t, f, nil, plainConfig(1)).WithOverflow(single)
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	a, err := p.BorrowObject(ctx)
	require.NoError(t, err)
	f.mu.Lock()
	f.makeErr = fmt.Errorf("primary unavailable")
	f.mu.Unlock()

	done := make(chan borrowResult, 1)
	go func() {
		obj, err := p.BorrowObject(ctx)
		done <- borrowResult{obj, err}
	}()
	res := testutil.Receive(t, done, time.Second, "borrower racing Close")
	assert.True(t, errors.Is(res.err, errors.ErrPoolClosed))
	assert.True(t, p.IsClosed())

	p.mu.Lock()
	assert.Equal(t, 0, p.waiters.Len())
	p.mu.Unlock()

	p.ReturnObject(a)
	assert.Equal(t, []*testObject{a}, f.destroyedObjects())
}

func TestCommonObjectPool_ContextCancellation(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(1))

	a, _ := p.BorrowObject(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.BorrowObject(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.mu.Lock()
	assert.Equal(t, 0, p.waiters.Len(), "cancelled waiter removed")
	p.mu.Unlock()

	p.ReturnObject(a)
	got, err := p.BorrowObject(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, got)
}

func TestCommonObjectPool_InvalidIdleObjectReplaced(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(1))
	ctx := context.Background()

	a, _ := p.BorrowObject(ctx)
	p.ReturnObject(a)
	f.mu.Lock()
	f.invalid[a] = true
	f.mu.Unlock()

	b, err := p.BorrowObject(ctx)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, []*testObject{a}, f.destroyedObjects())
	assert.Equal(t, Gauge{Active: 1}, p.Gauge())
}

func TestCommonObjectPool_CreateFailureFreesSlot(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(1))

	f.makeErr = fmt.Errorf("disk full")
	_, err := p.BorrowObject(context.Background())
	require.Error(t, err)
	assert.Equal(t, Gauge{}, p.Gauge())

	f.mu.Lock()
	f.makeErr = nil
	f.mu.Unlock()
	_, err = p.BorrowObject(context.Background())
	require.NoError(t, err)
}

func TestCommonObjectPool_Invalidate(t *testing.T) {
	f := newTestFactory()
	p := newCommon(t, f, nil, plainConfig(1))

	a, _ := p.BorrowObject(context.Background())
	p.Invalidate(a)
	assert.Equal(t, []*testObject{a}, f.destroyedObjects())
	assert.Equal(t, Gauge{}, p.Gauge())

	b, err := p.BorrowObject(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

// An object idle across two consecutive sweeps is destroyed; one borrowed in
// between survives.
func TestCommonObjectPool_TwoSweepEviction(t *testing.T) {
	f := newTestFactory()
	s := &manualScheduler{}
	p := newCommon(t, f, s, evictingConfig(2))
	ctx := context.Background()

	a, _ := p.BorrowObject(ctx)
	assert.Equal(t, 1, s.active(), "eviction scheduled on first create")
	p.ReturnObject(a)

	s.Tick()
	assert.Empty(t, f.destroyedObjects(), "first sweep only marks")

	got, _ := p.BorrowObject(ctx)
	require.Same(t, a, got)
	p.ReturnObject(got)

	s.Tick()
	assert.Empty(t, f.destroyedObjects(), "borrowed between sweeps")

	s.Tick()
	assert.Equal(t, []*testObject{a}, f.destroyedObjects())
	assert.Equal(t, Gauge{}, p.Gauge())
	assert.Equal(t, 1, s.active())

	s.Tick()
	assert.Equal(t, 0, s.active(), "empty pool cancels eviction")

	_, _ = p.BorrowObject(ctx)
	assert.Equal(t, 1, s.active())
	assert.Equal(t, 2, s.scheduled())
}

func TestCommonObjectPool_SweepStopsAtFirstKeeper(t *testing.T) {
	f := newTestFactory()
	s := &manualScheduler{}
	p := newCommon(t, f, s, evictingConfig(2))
	ctx := context.Background()

	a, _ := p.BorrowObject(ctx)
	b, _ := p.BorrowObject(ctx)

	p.ReturnObject(a)
	s.Tick()
	p.ReturnObject(b)
	s.Tick()

	assert.Equal(t, []*testObject{a}, f.destroyedObjects())
	assert.Equal(t, Gauge{Idle: 1}, p.Gauge())
}

func TestCommonObjectPool_EvictSkipsWhenLocked(t *testing.T) {
	f := newTestFactory()
	s := &manualScheduler{}
	p := newCommon(t, f, s, evictingConfig(1))

	a, _ := p.BorrowObject(context.Background())
	p.ReturnObject(a)

	p.mu.Lock()
	p.Evict()
	p.Evict()
	p.mu.Unlock()

	assert.Empty(t, f.destroyedObjects())
	assert.False(t, p.tag, "skipped sweeps do not flip the tag")
}

func TestCommonObjectPool_Clear(t *testing.T) {
	f := newTestFactory()
	s := &manualScheduler{}
	p := newCommon(t, f, s, evictingConfig(3))
	ctx := context.Background()

	a, _ := p.BorrowObject(ctx)
	b, _ := p.BorrowObject(ctx)
	c, _ := p.BorrowObject(ctx)
	p.ReturnObject(a)
	p.ReturnObject(b)

	p.Clear(PriorityLow)
	assert.Empty(t, f.destroyedObjects(), "low priority is one sweep")

	p.Clear(PriorityHigh)
	assert.ElementsMatch(t, []*testObject{a, b}, f.destroyedObjects())
	assert.Equal(t, Gauge{Active: 1}, p.Gauge())

	p.ReturnObject(c)
	assert.Equal(t, Gauge{Idle: 1}, p.Gauge())
}

func TestCommonObjectPool_OverflowToSingle(t *testing.T) {
	f := newTestFactory()
	single, err := NewSingleObjectPool[string, *testObject](f, nil, plainConfig(1))
	require.NoError(t, err)
	p := newCommon(t, f, nil, plainConfig(1)).WithOverflow(single)
	ctx := context.Background()

	a, _ := p.BorrowObject(ctx)
	assert.False(t, a.IsPrimary())

	over, err := p.BorrowObject(ctx)
	require.NoError(t, err)
	assert.True(t, over.IsPrimary(), "saturated pool overflows to the primary object")
	assert.Equal(t, Gauge{Active: 1}, single.Gauge())

	p.ReturnObject(over)
	assert.Equal(t, Gauge{Idle: 1}, single.Gauge())
	assert.Equal(t, Gauge{Active: 1}, p.Gauge())

	again, err := p.BorrowPrimaryObject(ctx)
	require.NoError(t, err)
	assert.Same(t, over, again)
}

func TestCommonObjectPool_BoundedUnderConcurrency(t *testing.T) {
	const maxTotal = 3
	f := newTestFactory()
	s := &manualScheduler{}
	p := newCommon(t, f, s, evictingConfig(maxTotal))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	var (
		inUse   atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				obj, err := p.BorrowObject(ctx)
				if !assert.NoError(t, err) {
					return
				}
				n := inUse.Add(1)
				for {
					seen := maxSeen.Load()
					if n <= seen || maxSeen.CompareAndSwap(seen, n) {
						break
					}
				}
				inUse.Add(-1)
				if i%10 == 0 {
					s.Tick()
				}
				p.ReturnObject(obj)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxSeen.Load(), int32(maxTotal))
	g := p.Gauge()
	assert.Equal(t, 0, g.Active)
	assert.LessOrEqual(t, g.Total(), maxTotal)
	assert.Equal(t, f.createdCount()-len(f.destroyedObjects()), g.Total(), "every created object is live or destroyed")

	require.NoError(t, p.Close())
	assert.Equal(t, f.createdCount(), len(f.destroyedObjects()))
	assert.Equal(t, 1, f.closeCount())
}
