package pool

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/sqlpool/pkg/errors"
	"github.com/ajitpratap0/sqlpool/pkg/testutil"
)

func newSingle(t *testing.T, f *testFactory, s Scheduler, cfg Configuration) *SingleObjectPool[string, *testObject] {
	t.Helper()
	p, err := NewSingleObjectPool[string, *testObject](f, s, cfg, WithLogger(testutil.TestLogger(t)), WithName(t.Name()))
	require.NoError(t, err)
	return p
}

func TestSingleObjectPool_CreatesLazilyOnce(t *testing.T) {
	f := newTestFactory()
	p := newSingle(t, f, nil, plainConfig(1))
	ctx := context.Background()

	assert.Equal(t, 0, f.createdCount())
	assert.Equal(t, Gauge{}, p.Gauge())

	a, err := p.BorrowObject(ctx)
	require.NoError(t, err)
	assert.True(t, a.IsPrimary())
	assert.Equal(t, Gauge{Active: 1}, p.Gauge())
	p.ReturnObject(a)
	assert.Equal(t, Gauge{Idle: 1}, p.Gauge())

	b, err := p.BorrowObjectWithKey(ctx, "ignored")
	require.NoError(t, err)
	assert.Same(t, a, b)
	p.ReturnObject(b)

	c, err := p.BorrowPrimaryObject(ctx)
	require.NoError(t, err)
	assert.Same(t, a, c)
	assert.Equal(t, 1, f.createdCount())
}

func TestSingleObjectPool_Exclusive(t *testing.T) {
	f := newTestFactory()
	p := newSingle(t, f, nil, plainConfig(1))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	a, err := p.BorrowObject(ctx)
	require.NoError(t, err)

	_, ok, err := p.TryBorrowObject()
	require.NoError(t, err)
	assert.False(t, ok)

	done := make(chan borrowResult, 1)
	go func() {
		obj, err := p.BorrowObject(ctx)
		done <- borrowResult{obj, err}
	}()
	testutil.AssertBlocked(t, done, 50*time.Millisecond, "second borrower")

	p.ReturnObject(a)
	res := testutil.Receive(t, done, time.Second, "second borrower")
	require.NoError(t, res.err)
	assert.Same(t, a, res.obj)
}

func TestSingleObjectPool_ContextCancellation(t *testing.T) {
	f := newTestFactory()
	p := newSingle(t, f, nil, plainConfig(1))

	a, _ := p.BorrowObject(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.BorrowObject(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.ReturnObject(a)
	got, ok, err := p.TryBorrowObject()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestSingleObjectPool_CloseWakesWaiter(t *testing.T) {
	f := newTestFactory()
	p := newSingle(t, f, nil, plainConfig(1))
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	a, _ := p.BorrowObject(ctx)

	done := make(chan borrowResult, 1)
	go func() {
		obj, err := p.BorrowObject(ctx)
		done <- borrowResult{obj, err}
	}()
	testutil.AssertBlocked(t, done, 20*time.Millisecond, "waiter")

	require.NoError(t, p.Close())
	res := testutil.Receive(t, done, time.Second, "woken waiter")
	assert.True(t, errors.Is(res.err, errors.ErrPoolClosed))
	assert.Empty(t, f.destroyedObjects(), "borrowed object survives until returned")
	assert.Equal(t, 0, f.closeCount())

	p.ReturnObject(a)
	assert.Equal(t, []*testObject{a}, f.destroyedObjects())
	assert.Equal(t, 1, f.closeCount())

	require.NoError(t, p.Close())
	assert.Equal(t, 1, f.closeCount())

	_, ok, _ := p.TryBorrowObject()
	assert.False(t, ok)
	_, err := p.BorrowObject(ctx)
	assert.True(t, errors.Is(err, errors.ErrPoolClosed))
}

func TestSingleObjectPool_CloseIdle(t *testing.T) {
	f := newTestFactory()
	p := newSingle(t, f, nil, plainConfig(1))

	a, _ := p.BorrowObject(context.Background())
	p.ReturnObject(a)

	require.NoError(t, p.Close())
	assert.True(t, p.IsClosed())
	assert.Equal(t, []*testObject{a}, f.destroyedObjects())
	assert.Equal(t, 1, f.closeCount())
	assert.Equal(t, Gauge{}, p.Gauge())
}

func TestSingleObjectPool_TwoSweepEviction(t *testing.T) {
	f := newTestFactory()
	s := &manualScheduler{}
	p := newSingle(t, f, s, evictingConfig(1))
	ctx := context.Background()

	a, _ := p.BorrowObject(ctx)
	require.Equal(t, 1, s.active())
	s.Tick()
	assert.Empty(t, f.destroyedObjects(), "sweep skipped while borrowed")
	p.ReturnObject(a)

	s.Tick()
	assert.Empty(t, f.destroyedObjects(), "first idle sweep marks")

	b, _ := p.BorrowObject(ctx)
	p.ReturnObject(b)
	s.Tick()
	assert.Empty(t, f.destroyedObjects(), "borrow clears the mark")

	s.Tick()
	assert.Equal(t, []*testObject{a}, f.destroyedObjects())
	assert.Equal(t, 0, s.active(), "eviction cancelled with the object")

	c, _ := p.BorrowObject(ctx)
	assert.NotSame(t, a, c)
	assert.Equal(t, 1, s.active())
}

func TestSingleObjectPool_ClearAndInvalidate(t *testing.T) {
	f := newTestFactory()
	p := newSingle(t, f, nil, plainConfig(1))
	ctx := context.Background()

	a, _ := p.BorrowObject(ctx)
	p.Clear(PriorityHigh)
	assert.Empty(t, f.destroyedObjects(), "borrowed object is not cleared")
	p.ReturnObject(a)

	p.Clear(PriorityHigh)
	assert.Equal(t, []*testObject{a}, f.destroyedObjects())
	assert.Equal(t, Gauge{}, p.Gauge())

	b, _ := p.BorrowObject(ctx)
	p.Invalidate(b)
	assert.Equal(t, []*testObject{a, b}, f.destroyedObjects())

	c, err := p.BorrowObject(ctx)
	require.NoError(t, err)
	assert.NotSame(t, b, c)
}

func TestSingleObjectPool_CreateFailureReleasesPermit(t *testing.T) {
	f := newTestFactory()
	p := newSingle(t, f, nil, plainConfig(1))

	f.makeErr = fmt.Errorf("locked")
	_, err := p.BorrowObject(context.Background())
	require.Error(t, err)
	_, ok, err := p.TryBorrowObject()
	require.Error(t, err)
	assert.False(t, ok)

	f.mu.Lock()
	f.makeErr = nil
	f.mu.Unlock()
	_, ok, err = p.TryBorrowObject()
	require.NoError(t, err)
	assert.True(t, ok)
}
