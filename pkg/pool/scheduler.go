package pool

import (
	"sync"
	"time"
)

// Cancellable is a handle to a scheduled task.
type Cancellable interface {
	// Cancel stops future runs. A run in progress is not interrupted.
	// Cancel never blocks and may be called more than once.
	Cancel()
}

// Scheduler runs tasks periodically.
type Scheduler interface {
	ScheduleAtFixedRate(task func(), initialDelay, period time.Duration) Cancellable
}

// TickerScheduler runs each task on its own goroutine driven by a
// time.Ticker. Runs of one task never overlap; a slow run delays the next.
type TickerScheduler struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	stopCh chan struct{}
	closed bool
}

// NewTickerScheduler creates a running scheduler.
func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{stopCh: make(chan struct{})}
}

type scheduledTask struct {
	once   sync.Once
	cancel chan struct{}
}

func (t *scheduledTask) Cancel() {
	t.once.Do(func() { close(t.cancel) })
}

// ScheduleAtFixedRate runs task after initialDelay and then every period.
// Tasks scheduled after Close never run.
func (s *TickerScheduler) ScheduleAtFixedRate(task func(), initialDelay, period time.Duration) Cancellable {
	t := &scheduledTask{cancel: make(chan struct{})}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		t.Cancel()
		return t
	}

	s.wg.Add(1)
	go s.run(t, task, initialDelay, period)
	return t
}

func (s *TickerScheduler) run(t *scheduledTask, task func(), initialDelay, period time.Duration) {
	defer s.wg.Done()

	delay := time.NewTimer(initialDelay)
	defer delay.Stop()
	select {
	case <-delay.C:
	case <-t.cancel:
		return
	case <-s.stopCh:
		return
	}
	task()

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			task()
		case <-t.cancel:
			return
		case <-s.stopCh:
			return
		}
	}
}

// Close stops every task and waits for runs in progress to finish. It must
// not be called from within a task.
func (s *TickerScheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}
