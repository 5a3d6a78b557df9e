package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Body is a plain task body. It runs to completion; the scheduler never
// preempts it.
type Body func() error

// InterruptibleBody is a cooperative task body. It receives a proceed
// predicate that turns false once the task is stopped, paused, or past its
// max running time, and is expected to poll it and return early.
type InterruptibleBody func(proceed func() bool) error

// cronParser accepts both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// TaskConfig describes a task to register.
//
// Exactly one of Run and RunInterruptible must be set, and exactly one of
// Interval and Cron. MaxRunningTime is advisory: it only takes effect through
// the proceed predicate and the post-body check, never by force.
type TaskConfig struct {
	Name             string
	Priority         Priority
	Interval         time.Duration
	Cron             string
	Windows          []TimeWindow
	MaxRunningTime   time.Duration
	Run              Body
	RunInterruptible InterruptibleBody
}

// Task is a recurring unit of work owned by a Scheduler. Callers keep the
// returned handle only for control calls (Pause, Resume, Stop, Reset) and
// callback registration; execution is driven by the scheduler.
type Task struct {
	id             string
	name           string
	priority       Priority
	interval       time.Duration
	windows        []TimeWindow
	maxRunningTime time.Duration
	sched          cron.Schedule // nil unless configured with a cron spec

	// seq is the registration order, assigned by Scheduler.AddTask and used
	// as the stable tie-break within a priority class.
	seq uint64

	// stopReq is set by Stop and cleared only by Reset. runGate is cleared
	// by Pause and set by Resume, Stop, and Reset; while cleared the task
	// parks instead of running.
	stopReq *gate
	runGate *gate

	mu         sync.Mutex
	status     Status
	lastRun    time.Time // zero until the first completed cycle
	nextRun    time.Time
	errorCount int
	execStart  time.Time // zero unless a body is executing

	onSuccess      []func(*Task)
	onFailure      []func(*Task)
	onStatusChange []func(t *Task, old, new Status)

	body          Body
	interruptible InterruptibleBody
}

// NewTask validates cfg and builds a pending task with its first next-run
// computed (window-aware for interval tasks, next fire time for cron tasks).
func NewTask(cfg TaskConfig) (*Task, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("task name is required")
	}
	if (cfg.Run == nil) == (cfg.RunInterruptible == nil) {
		return nil, fmt.Errorf("task %q: exactly one of Run and RunInterruptible must be set", cfg.Name)
	}
	if (cfg.Interval > 0) == (cfg.Cron != "") {
		return nil, fmt.Errorf("task %q: exactly one of Interval and Cron must be set", cfg.Name)
	}

	t := &Task{
		id:             uuid.NewString(),
		name:           cfg.Name,
		priority:       cfg.Priority,
		interval:       cfg.Interval,
		windows:        append([]TimeWindow(nil), cfg.Windows...),
		maxRunningTime: cfg.MaxRunningTime,
		stopReq:        newGate(false),
		runGate:        newGate(true),
		status:         StatusPending,
		body:           cfg.Run,
		interruptible:  cfg.RunInterruptible,
	}
	if cfg.Cron != "" {
		sched, err := cronParser.Parse(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("task %q: invalid cron spec %q: %w", cfg.Name, cfg.Cron, err)
		}
		t.sched = sched
	}
	t.computeNextRunLocked(time.Now())
	return t, nil
}

func (t *Task) ID() string         { return t.id }
func (t *Task) Name() string       { return t.name }
func (t *Task) Priority() Priority { return t.priority }

// Interval returns the configured interval; zero for cron tasks.
func (t *Task) Interval() time.Duration { return t.interval }

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// LastRun returns the completion time of the last successful cycle, zero if
// the task never completed.
func (t *Task) LastRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRun
}

func (t *Task) NextRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextRun
}

func (t *Task) ErrorCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.errorCount
}

// AddSuccessCallback registers fn to run after every completed cycle, in
// registration order, before Run returns.
func (t *Task) AddSuccessCallback(fn func(*Task)) {
	t.mu.Lock()
	t.onSuccess = append(t.onSuccess, fn)
	t.mu.Unlock()
}

// AddFailureCallback registers fn to run after every failed cycle.
func (t *Task) AddFailureCallback(fn func(*Task)) {
	t.mu.Lock()
	t.onFailure = append(t.onFailure, fn)
	t.mu.Unlock()
}

// AddStatusChangeCallback registers fn to run synchronously on every status
// transition. Callbacks run with no lock held and may re-enter control
// methods.
func (t *Task) AddStatusChangeCallback(fn func(t *Task, old, new Status)) {
	t.mu.Lock()
	t.onStatusChange = append(t.onStatusChange, fn)
	t.mu.Unlock()
}

// setStatusLocked records the transition and returns the deferred callback
// dispatch. Callers invoke the returned func after releasing t.mu.
func (t *Task) setStatusLocked(next Status) func() {
	old := t.status
	t.status = next
	cbs := t.onStatusChange
	return func() {
		for _, cb := range cbs {
			cb(t, old, next)
		}
	}
}

// Pause requests a pause. A task that is not running parks immediately; a
// running task parks at its next interruption check. Pausing a stopped task
// is an error.
func (t *Task) Pause() error {
	t.mu.Lock()
	if t.status == StatusStopped {
		t.mu.Unlock()
		return ErrTaskStopped
	}
	t.runGate.Clear()
	var fire func()
	if t.status != StatusRunning {
		fire = t.setStatusLocked(StatusPaused)
	}
	t.mu.Unlock()
	if fire != nil {
		fire()
	}
	return nil
}

// Resume releases a paused task back to pending and restarts its period from
// now. Resuming a stopped task is an error; resuming a task that is not
// paused only clears the pause request.
func (t *Task) Resume() error {
	t.mu.Lock()
	if t.status == StatusStopped {
		t.mu.Unlock()
		return ErrTaskStopped
	}
	t.runGate.Set()
	var fire func()
	if t.status == StatusPaused {
		fire = t.setStatusLocked(StatusPending)
		t.restartPeriodLocked(time.Now())
	}
	t.mu.Unlock()
	if fire != nil {
		fire()
	}
	return nil
}

// Stop moves the task to stopped from any state and releases an execution
// blocked on pause. Stop always succeeds and is idempotent.
func (t *Task) Stop() {
	t.mu.Lock()
	t.stopReq.Set()
	t.runGate.Set()
	var fire func()
	if t.status != StatusStopped {
		fire = t.setStatusLocked(StatusStopped)
	}
	t.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// Reset clears the stop request and the error count and returns the task to
// pending with a freshly computed next-run. Reset always succeeds.
func (t *Task) Reset() {
	t.mu.Lock()
	t.stopReq.Clear()
	t.runGate.Set()
	t.errorCount = 0
	fire := t.setStatusLocked(StatusPending)
	t.computeNextRunLocked(time.Now())
	t.mu.Unlock()
	fire()
}

// due reports whether the dispatcher should run the task this tick. Paused
// tasks are excluded here rather than parked on, so one paused task cannot
// stall the whole batch.
func (t *Task) due(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case StatusRunning, StatusPaused, StatusStopped, StatusCancelled:
		return false
	}
	if t.nextRun.IsZero() || t.nextRun.After(now) {
		return false
	}
	return t.inWindow(now)
}

func (t *Task) inWindow(at time.Time) bool {
	if len(t.windows) == 0 {
		return true
	}
	for _, w := range t.windows {
		if w.Contains(at) {
			return true
		}
	}
	return false
}

// advanceIntoWindow pushes an instant forward to the earliest configured
// window opening until it lands inside one. For well-formed windows a single
// hop suffices, since every opening instant is itself in-window.
func (t *Task) advanceIntoWindow(at time.Time) time.Time {
	if len(t.windows) == 0 {
		return at
	}
	for !t.inWindow(at) {
		var next time.Time
		for _, w := range t.windows {
			if s := w.NextStart(at); next.IsZero() || s.Before(next) {
				next = s
			}
		}
		at = next
	}
	return at
}

// computeNextRunLocked derives the next run from the last completed cycle:
// now for a task that never ran, last run plus interval otherwise, then
// window-advanced. Cron tasks take the schedule's next fire time instead.
func (t *Task) computeNextRunLocked(now time.Time) {
	var base time.Time
	switch {
	case t.sched != nil:
		base = t.sched.Next(now)
	case t.lastRun.IsZero():
		base = now
	default:
		base = t.lastRun.Add(t.interval)
	}
	t.nextRun = t.advanceIntoWindow(base)
}

// restartPeriodLocked restarts the period from now, used after Resume and
// after a time-limit abort so the task does not become due again on the very
// next tick.
func (t *Task) restartPeriodLocked(now time.Time) {
	if t.sched != nil {
		t.nextRun = t.advanceIntoWindow(t.sched.Next(now))
		return
	}
	t.nextRun = t.advanceIntoWindow(now.Add(t.interval))
}
