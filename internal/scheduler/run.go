package scheduler

import "time"

type runOutcome int

const (
	runAborted runOutcome = iota
	runCompleted
	runFailed
)

func (o runOutcome) outcome() Outcome {
	switch o {
	case runCompleted:
		return OutcomeCompleted
	case runFailed:
		return OutcomeFailed
	}
	return OutcomeAborted
}

// Run executes one cycle of the task on the calling goroutine. It returns
// true only when the cycle completed successfully; a failed body and an
// aborted cycle (stop, pause released into stop, or time limit) both return
// false. Failed cycles move the task to failed and bump its error count;
// aborted cycles leave last-run untouched and produce no completed or failed
// transition.
func (t *Task) Run() bool {
	out, _ := t.runCycle()
	return out == runCompleted
}

// runCycle is Run with the detail the dispatcher needs for recording.
func (t *Task) runCycle() (runOutcome, error) {
	// Park on a pause request before touching any state; a stop request
	// aborts outright.
	if !t.awaitRunnable() {
		return runAborted, nil
	}

	// Re-check under the lock: Pause or Stop may have slipped in between
	// the wait above and lock acquisition.
	for {
		t.mu.Lock()
		if t.stopReq.On() {
			t.mu.Unlock()
			return runAborted, nil
		}
		if !t.runGate.On() {
			t.mu.Unlock()
			if !t.awaitRunnable() {
				return runAborted, nil
			}
			continue
		}
		break
	}
	fire := t.setStatusLocked(StatusRunning)
	t.execStart = time.Now()
	t.mu.Unlock()
	fire()

	err := t.invokeBody()

	if err != nil {
		if t.stopReq.On() {
			// Stop won the race with the body's error: stopped is
			// terminal, so the failure is swallowed as an abort.
			t.abortCycle()
			return runAborted, nil
		}
		t.mu.Lock()
		t.execStart = time.Time{}
		fire := t.setStatusLocked(StatusFailed)
		t.errorCount++
		fail := t.onFailure
		t.mu.Unlock()
		fire()
		for _, cb := range fail {
			cb(t)
		}
		return runFailed, err
	}

	if t.stopReq.On() || !t.runGate.On() || t.overTimeLimit() {
		t.abortCycle()
		return runAborted, nil
	}

	t.mu.Lock()
	t.execStart = time.Time{}
	fire = t.setStatusLocked(StatusCompleted)
	t.lastRun = time.Now()
	t.computeNextRunLocked(t.lastRun)
	succ := t.onSuccess
	t.mu.Unlock()
	fire()
	for _, cb := range succ {
		cb(t)
	}
	return runCompleted, nil
}

func (t *Task) invokeBody() error {
	if t.interruptible != nil {
		return t.interruptible(t.proceed)
	}
	return t.body()
}

// proceed is the continue predicate handed to interruptible bodies: keep
// going only while not stopped, not paused, and inside the time limit.
func (t *Task) proceed() bool {
	if t.stopReq.On() || !t.runGate.On() {
		return false
	}
	return !t.overTimeLimit()
}

func (t *Task) overTimeLimit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxRunningTime <= 0 || t.execStart.IsZero() {
		return false
	}
	return time.Since(t.execStart) > t.maxRunningTime
}

// awaitRunnable blocks while a pause request is pending. It returns false if
// the task is stopped, either up front or while parked.
func (t *Task) awaitRunnable() bool {
	if t.stopReq.On() {
		return false
	}
	if t.runGate.On() {
		return true
	}

	t.mu.Lock()
	fire := t.setStatusLocked(StatusPaused)
	t.mu.Unlock()
	fire()

	select {
	case <-t.runGate.Done():
	case <-t.stopReq.Done():
	}
	if t.stopReq.On() {
		return false
	}

	t.mu.Lock()
	fire = t.setStatusLocked(StatusPending)
	t.mu.Unlock()
	fire()
	return true
}

// abortCycle finalizes an aborted execution. No completed or failed
// transition happens; instead the task lands wherever the abort cause puts
// it: stopped stays stopped, a pause parks the task, and a time-limit abort
// returns it to pending with its period restarted from now so it cannot spin
// on the next tick.
func (t *Task) abortCycle() {
	t.mu.Lock()
	t.execStart = time.Time{}
	var fire func()
	switch {
	case t.stopReq.On():
		// Stop already drove the status to stopped and fired callbacks.
	case !t.runGate.On():
		fire = t.setStatusLocked(StatusPaused)
	default:
		fire = t.setStatusLocked(StatusPending)
		t.restartPeriodLocked(time.Now())
	}
	t.mu.Unlock()
	if fire != nil {
		fire()
	}
}
