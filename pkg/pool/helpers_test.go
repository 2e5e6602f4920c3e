package pool

import (
	"sync"
	"sync/atomic"
	"time"
)

type testObject struct {
	id      int
	primary bool
	tag     bool
	keys    map[string]bool
}

func (o *testObject) IsPrimary() bool         { return o.primary }
func (o *testObject) Tag() bool               { return o.tag }
func (o *testObject) SetTag(tag bool)         { o.tag = tag }
func (o *testObject) Matches(key string) bool { return o.keys[key] }

type testFactory struct {
	BaseObjectFactory[*testObject]

	mu        sync.Mutex
	next      int
	created   []*testObject
	destroyed []*testObject
	invalid   map[*testObject]bool
	makeErr   error
	closed    int
	events    *[]string
	label     string

	activated  atomic.Int32
	passivated atomic.Int32
}

func newTestFactory() *testFactory {
	return &testFactory{invalid: map[*testObject]bool{}}
}

func (f *testFactory) make(primary bool) (*testObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.makeErr != nil {
		return nil, f.makeErr
	}
	f.next++
	obj := &testObject{id: f.next, primary: primary, keys: map[string]bool{}}
	f.created = append(f.created, obj)
	return obj, nil
}

func (f *testFactory) MakeObject() (*testObject, error)        { return f.make(false) }
func (f *testFactory) MakePrimaryObject() (*testObject, error) { return f.make(true) }

func (f *testFactory) ActivateObject(*testObject)  { f.activated.Add(1) }
func (f *testFactory) PassivateObject(*testObject) { f.passivated.Add(1) }

func (f *testFactory) ValidateObject(obj *testObject) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.invalid[obj]
}

func (f *testFactory) DestroyObject(obj *testObject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, obj)
	return nil
}

func (f *testFactory) Gauge() Gauge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Gauge{Idle: len(f.created) - len(f.destroyed)}
}

func (f *testFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	if f.events != nil {
		*f.events = append(*f.events, f.label+" closed")
	}
	return nil
}

func (f *testFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *testFactory) destroyedObjects() []*testObject {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*testObject(nil), f.destroyed...)
}

func (f *testFactory) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// manualScheduler runs scheduled tasks only when Tick is called.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

type manualTask struct {
	run       func()
	delay     time.Duration
	period    time.Duration
	cancelled atomic.Bool
}

func (t *manualTask) Cancel() { t.cancelled.Store(true) }

func (s *manualScheduler) ScheduleAtFixedRate(task func(), initialDelay, period time.Duration) Cancellable {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{run: task, delay: initialDelay, period: period}
	s.tasks = append(s.tasks, t)
	return t
}

// Tick runs every live task once.
func (s *manualScheduler) Tick() {
	s.mu.Lock()
	tasks := append([]*manualTask(nil), s.tasks...)
	s.mu.Unlock()
	for _, t := range tasks {
		if !t.cancelled.Load() {
			t.run()
		}
	}
}

func (s *manualScheduler) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.cancelled.Load() {
			n++
		}
	}
	return n
}

func (s *manualScheduler) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func evictingConfig(maxTotal int) Configuration {
	return Configuration{
		MaxTotal:         maxTotal,
		EvictionDelay:    time.Minute,
		EvictionInterval: time.Minute,
	}
}

func plainConfig(maxTotal int) Configuration {
	return Configuration{MaxTotal: maxTotal, EvictionInterval: -1}
}

type borrowResult struct {
	obj *testObject
	err error
}
