// Package scheduler provides the in-process periodic-task scheduler that taskd
// is built around.
//
// # Overview
//
// Tasks are recurring units of work with a priority, a fixed interval (or a
// cron expression), optional daily time windows, and an advisory execution-time
// limit. A Scheduler owns a set of registered tasks and runs a poll loop that
// each tick selects the due, eligible tasks, orders them by priority, and runs
// them one at a time on the dispatcher goroutine.
//
// # Task lifecycle
//
// A task moves through the statuses pending, running, completed, failed,
// paused, and stopped. Stopped is terminal: only Reset brings a stopped task
// back to pending. Pause and Resume are cooperative; a pause observed while a
// task body executes parks the task until Resume or Stop. Cancelled exists for
// callers that track externally-cancelled work; the scheduler never produces it.
//
// # Modes
//
// A Scheduler runs in Foreground mode, where Start blocks the caller until
// Stop is called from elsewhere, or Background mode, where Start spawns the
// dispatcher goroutine and returns. Stop in Background mode waits (bounded)
// for the dispatcher to exit.
//
// # Cooperative interruption
//
// The scheduler never preempts a task body. Bodies registered as interruptible
// receive a proceed() predicate and are expected to poll it; the predicate
// turns false once the task is stopped, paused, or past its max running time.
// An interrupted cycle is aborted: it is neither a completion nor a failure.
//
// # Locking
//
// Each task guards its own bookkeeping with its own mutex; the scheduler
// guards the task collection with another. Lock order is scheduler before
// task, never the reverse, and callbacks always run with no lock held, so a
// callback may safely re-enter any control method.
package scheduler
