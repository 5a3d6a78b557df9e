package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTaskStopped is returned by Pause and Resume on a stopped task.
	ErrTaskStopped = errors.New("task is stopped")
	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler already running")
	// ErrRunningMode is returned by SetMode while the scheduler runs.
	ErrRunningMode = errors.New("cannot change mode while scheduler is running")
)

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusPending marks a task waiting for its next run.
	StatusPending Status = "pending"
	// StatusRunning marks a task whose body is currently executing.
	StatusRunning Status = "running"
	// StatusCompleted marks a task whose last cycle finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed marks a task whose last cycle returned an error.
	StatusFailed Status = "failed"
	// StatusPaused marks a task parked until Resume or Stop.
	StatusPaused Status = "paused"
	// StatusStopped marks a task that will never run again (short of Reset).
	StatusStopped Status = "stopped"
	// StatusCancelled is reserved for externally-cancelled work; the
	// scheduler itself never sets it.
	StatusCancelled Status = "cancelled"
)

// Priority orders tasks that are due within the same tick.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority maps a priority name to its value. The empty string maps to
// PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// Mode selects how Start behaves.
type Mode int

const (
	// Foreground runs the dispatch loop on the caller's goroutine.
	Foreground Mode = iota
	// Background runs the dispatch loop on a dedicated goroutine.
	Background
)

func (m Mode) String() string {
	if m == Background {
		return "background"
	}
	return "foreground"
}

// ParseMode maps a mode name to its value. The empty string maps to Foreground.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "foreground":
		return Foreground, nil
	case "background":
		return Background, nil
	}
	return 0, fmt.Errorf("unknown scheduler mode %q", s)
}

const (
	// DefaultCheckInterval is the tick period used when Config leaves it zero.
	DefaultCheckInterval = 100 * time.Millisecond
	// DefaultStopTimeout bounds how long Stop waits for a background
	// dispatcher to exit.
	DefaultStopTimeout = 5 * time.Second
)

// Outcome classifies one executed cycle for run recording.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
)

// RunRecord describes one executed cycle as seen by the dispatcher.
type RunRecord struct {
	TaskID   string
	TaskName string
	Priority Priority
	Started  time.Time
	Duration time.Duration
	Outcome  Outcome
	Err      error
}

// RunRecorder receives a RunRecord after every cycle the dispatcher executes.
// Record is called synchronously from the dispatcher goroutine; slow sinks
// delay the tick.
type RunRecorder interface {
	Record(RunRecord)
}

// RecorderFunc adapts a function to the RunRecorder interface.
type RecorderFunc func(RunRecord)

func (f RecorderFunc) Record(r RunRecord) { f(r) }
