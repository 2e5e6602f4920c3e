package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/sqlpool/pkg/testutil"
)

func TestTickerScheduler(t *testing.T) {
	s := NewTickerScheduler()
	defer s.Close()

	var runs atomic.Int32
	task := s.ScheduleAtFixedRate(func() { runs.Add(1) }, time.Millisecond, 5*time.Millisecond)
	testutil.AssertEventually(t, func() bool { return runs.Load() >= 3 }, time.Second, "task runs repeatedly")

	task.Cancel()
	task.Cancel()
	time.Sleep(20 * time.Millisecond)
	stopped := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load(), "cancelled task does not run")
}

func TestTickerScheduler_CancelBeforeFirstRun(t *testing.T) {
	s := NewTickerScheduler()
	defer s.Close()

	var runs atomic.Int32
	task := s.ScheduleAtFixedRate(func() { runs.Add(1) }, time.Hour, time.Hour)
	task.Cancel()
	s.Close()
	assert.Equal(t, int32(0), runs.Load())
}

func TestTickerScheduler_Close(t *testing.T) {
	s := NewTickerScheduler()

	var runs atomic.Int32
	s.ScheduleAtFixedRate(func() { runs.Add(1) }, 0, time.Millisecond)
	testutil.AssertEventually(t, func() bool { return runs.Load() > 0 }, time.Second, "task started")

	s.Close()
	stopped := runs.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())

	late := s.ScheduleAtFixedRate(func() { runs.Add(1) }, 0, time.Millisecond)
	require.NotNil(t, late)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load(), "tasks scheduled after close never run")
}

// A real scheduler drives pool eviction end to end.
func TestTickerScheduler_EvictsIdleObjects(t *testing.T) {
	s := NewTickerScheduler()
	defer s.Close()

	f := newTestFactory()
	p := newCommon(t, f, s, Configuration{
		MaxTotal:         1,
		EvictionDelay:    time.Millisecond,
		EvictionInterval: 5 * time.Millisecond,
	})
	obj, err := p.BorrowObject(context.Background())
	require.NoError(t, err)
	p.ReturnObject(obj)

	testutil.AssertEventually(t, func() bool { return len(f.destroyedObjects()) == 1 }, time.Second, "idle object evicted")
	assert.Equal(t, Gauge{}, p.Gauge())
}

func TestConfiguration(t *testing.T) {
	assert.NoError(t, DefaultConfiguration().Validate())
	assert.True(t, DefaultConfiguration().EvictionEnabled())

	assert.Error(t, Configuration{MaxTotal: 0}.Validate())
	assert.Error(t, Configuration{MaxTotal: 1, EvictionDelay: -time.Second, EvictionInterval: time.Second}.Validate())
	assert.NoError(t, Configuration{MaxTotal: 1, EvictionDelay: -time.Second, EvictionInterval: -1}.Validate())
	assert.False(t, Configuration{MaxTotal: 1}.EvictionEnabled())

	assert.Equal(t, "high", PriorityHigh.String())
	assert.Equal(t, 3, Gauge{Idle: 1, Active: 2}.Total())
}
