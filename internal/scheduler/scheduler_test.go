package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	return New(cfg, zerolog.Nop())
}

// orderTask registers a task whose body appends name to out.
func orderTask(t *testing.T, s *Scheduler, name string, prio Priority, mu *sync.Mutex, out *[]string) *Task {
	t.Helper()
	task, err := NewTask(TaskConfig{
		Name:     name,
		Priority: prio,
		Interval: time.Hour,
		Run: func() error {
			mu.Lock()
			*out = append(*out, name)
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewTask(%s) error: %v", name, err)
	}
	s.AddTask(task)
	return task
}

func TestDispatchPriorityOrder(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{})
	var mu sync.Mutex
	var order []string

	orderTask(t, s, "low", PriorityLow, &mu, &order)
	orderTask(t, s, "critical", PriorityCritical, &mu, &order)
	orderTask(t, s, "normal", PriorityNormal, &mu, &order)
	orderTask(t, s, "high", PriorityHigh, &mu, &order)

	s.dispatch(make(chan struct{}))

	mu.Lock()
	defer mu.Unlock()
	want := []string{"critical", "high", "normal", "low"}
	if len(order) != len(want) {
		t.Fatalf("executed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("executed %v, want %v", order, want)
		}
	}
}

func TestDispatchStableTieBreak(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{})
	var mu sync.Mutex
	var order []string

	for _, name := range []string{"first", "second", "third"} {
		orderTask(t, s, name, PriorityNormal, &mu, &order)
	}
	s.dispatch(make(chan struct{}))

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "third"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("executed %v, want registration order %v", order, want)
		}
	}
}

func TestDispatchSkipsIneligible(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{})
	var mu sync.Mutex
	var order []string

	stopped := orderTask(t, s, "stopped", PriorityNormal, &mu, &order)
	stopped.Stop()
	paused := orderTask(t, s, "paused", PriorityNormal, &mu, &order)
	_ = paused.Pause()
	orderTask(t, s, "runnable", PriorityNormal, &mu, &order)

	s.dispatch(make(chan struct{}))

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 1 || order[0] != "runnable" {
		t.Fatalf("executed %v, want [runnable]", order)
	}
}

func TestDispatchContinuesPastFailure(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{})
	var ran atomic.Bool

	bad, err := NewTask(TaskConfig{
		Name:     "bad",
		Priority: PriorityHigh,
		Interval: time.Hour,
		Run:      func() error { return errors.New("boom") },
	})
	if err != nil {
		t.Fatalf("NewTask error: %v", err)
	}
	good, err := NewTask(TaskConfig{
		Name:     "good",
		Interval: time.Hour,
		Run:      func() error { ran.Store(true); return nil },
	})
	if err != nil {
		t.Fatalf("NewTask error: %v", err)
	}
	s.AddTask(bad)
	s.AddTask(good)

	s.dispatch(make(chan struct{}))

	if !ran.Load() {
		t.Fatal("a failing task must not prevent later tasks from running")
	}
	if got := bad.ErrorCount(); got != 1 {
		t.Fatalf("bad.ErrorCount = %d, want 1", got)
	}
}

func TestBackgroundScheduling(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{Mode: Background, CheckInterval: 20 * time.Millisecond})
	var calls atomic.Int64

	task, err := NewTask(TaskConfig{
		Name:     "fast",
		Interval: 100 * time.Millisecond,
		Run:      func() error { calls.Add(1); return nil },
	})
	if err != nil {
		t.Fatalf("NewTask error: %v", err)
	}
	s.AddTask(task)

	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("IsRunning = false after background Start")
	}
	time.Sleep(500 * time.Millisecond)
	s.Stop()

	if got := calls.Load(); got < 3 {
		t.Fatalf("task ran %d times in 500ms, want >= 3", got)
	}
	if s.IsRunning() {
		t.Fatal("IsRunning = true after Stop")
	}
	// Idempotent.
	s.Stop()
}

func TestBackgroundPriorityObserved(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{Mode: Background, CheckInterval: 20 * time.Millisecond})
	var mu sync.Mutex
	var order []string

	mk := func(name string, prio Priority) {
		task, err := NewTask(TaskConfig{
			Name:     name,
			Priority: prio,
			Interval: 100 * time.Millisecond,
			Run: func() error {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				return nil
			},
		})
		if err != nil {
			t.Fatalf("NewTask error: %v", err)
		}
		s.AddTask(task)
	}
	mk("low", PriorityLow)
	mk("high", PriorityHigh)

	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(order) < 2 {
		t.Fatalf("executed %v, want at least one full tick", order)
	}
	if order[0] != "high" || order[1] != "low" {
		t.Fatalf("first tick executed %v, want high before low", order[:2])
	}
}

func TestStartErrors(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{Mode: Background, CheckInterval: 10 * time.Millisecond})
	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	if err := s.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start: err = %v, want %v", err, ErrAlreadyRunning)
	}
	if err := s.SetMode(Foreground); !errors.Is(err, ErrRunningMode) {
		t.Fatalf("SetMode while running: err = %v, want %v", err, ErrRunningMode)
	}
}

func TestSetModeWhileStopped(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{})
	if err := s.SetMode(Background); err != nil {
		t.Fatalf("SetMode error: %v", err)
	}
	if got := s.Mode(); got != Background {
		t.Fatalf("Mode = %s, want %s", got, Background)
	}
}

func TestForegroundBlocksUntilStop(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{Mode: Foreground, CheckInterval: 10 * time.Millisecond})

	returned := make(chan struct{})
	go func() {
		_ = s.Start()
		close(returned)
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-returned:
		t.Fatal("foreground Start returned before Stop")
	default:
	}

	s.Stop()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("foreground Start did not return after Stop")
	}
}

func TestRemoveTaskStops(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{})
	task, err := NewTask(TaskConfig{Name: "x", Interval: time.Hour, Run: func() error { return nil }})
	if err != nil {
		t.Fatalf("NewTask error: %v", err)
	}
	id := s.AddTask(task)

	if _, ok := s.GetTask(id); !ok {
		t.Fatal("GetTask: task missing after AddTask")
	}
	s.RemoveTask(id)
	if _, ok := s.GetTask(id); ok {
		t.Fatal("GetTask: task present after RemoveTask")
	}
	if got := task.Status(); got != StatusStopped {
		t.Fatalf("removed task status = %s, want %s", got, StatusStopped)
	}
	// Unknown ids are a no-op.
	s.RemoveTask("nope")
}

func TestRunRecorder(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var records []RunRecord
	s := newTestScheduler(t, Config{
		Recorder: RecorderFunc(func(r RunRecord) {
			mu.Lock()
			records = append(records, r)
			mu.Unlock()
		}),
	})

	good, err := NewTask(TaskConfig{Name: "ok", Interval: time.Hour, Run: func() error { return nil }})
	if err != nil {
		t.Fatalf("NewTask error: %v", err)
	}
	bad, err := NewTask(TaskConfig{Name: "bad", Interval: time.Hour, Run: func() error { return errors.New("boom") }})
	if err != nil {
		t.Fatalf("NewTask error: %v", err)
	}
	s.AddTask(good)
	s.AddTask(bad)

	s.dispatch(make(chan struct{}))

	mu.Lock()
	defer mu.Unlock()
	if len(records) != 2 {
		t.Fatalf("recorded %d cycles, want 2", len(records))
	}
	byName := map[string]RunRecord{}
	for _, r := range records {
		byName[r.TaskName] = r
	}
	if got := byName["ok"].Outcome; got != OutcomeCompleted {
		t.Fatalf("ok outcome = %s, want %s", got, OutcomeCompleted)
	}
	if got := byName["bad"].Outcome; got != OutcomeFailed {
		t.Fatalf("bad outcome = %s, want %s", got, OutcomeFailed)
	}
	if byName["bad"].Err == nil {
		t.Fatal("failed record missing error")
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t, Config{Mode: Background, CheckInterval: 42 * time.Millisecond})
	for _, name := range []string{"a", "b"} {
		task, err := NewTask(TaskConfig{Name: name, Interval: time.Hour, Run: func() error { return nil }})
		if err != nil {
			t.Fatalf("NewTask error: %v", err)
		}
		s.AddTask(task)
	}

	snap := s.Snapshot()
	if snap.Running {
		t.Fatal("snapshot reports running before Start")
	}
	if snap.Mode != Background || snap.CheckInterval != 42*time.Millisecond {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Tasks) != 2 || snap.Tasks[0].Name != "a" || snap.Tasks[1].Name != "b" {
		t.Fatalf("snapshot tasks = %+v, want registration order a, b", snap.Tasks)
	}
	if snap.Tasks[0].Status != StatusPending {
		t.Fatalf("task status = %s, want %s", snap.Tasks[0].Status, StatusPending)
	}
}
