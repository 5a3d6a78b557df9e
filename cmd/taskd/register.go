package main

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"taskd/internal/config"
	"taskd/internal/scheduler"
	"taskd/internal/tasks"
)

// registry owns the mapping from config-defined tasks to registered scheduler
// tasks, so a config reload can swap the whole set atomically.
type registry struct {
	sched *scheduler.Scheduler
	log   zerolog.Logger

	mu  sync.Mutex
	ids []string
}

// apply replaces the registered task set with the one defined in cfg. The new
// set is built and validated in full before any existing task is removed, so
// a rejected config leaves the running set untouched.
func (r *registry) apply(cfg *config.Config) error {
	built := make([]*scheduler.Task, 0, len(cfg.Tasks))
	for _, tc := range cfg.Tasks {
		task, err := buildTask(tc, r.log)
		if err != nil {
			return err
		}
		built = append(built, task)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.ids {
		r.sched.RemoveTask(id)
	}
	r.ids = r.ids[:0]
	for _, task := range built {
		r.ids = append(r.ids, r.sched.AddTask(task))
		r.log.Info().
			Str("task", task.Name()).
			Stringer("priority", task.Priority()).
			Msg("task registered")
	}
	return nil
}

// buildTask translates one config entry into a scheduler task bound to its
// built-in body.
func buildTask(tc config.Task, log zerolog.Logger) (*scheduler.Task, error) {
	prio, err := scheduler.ParsePriority(tc.Priority)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", tc.Name, err)
	}
	interval, err := config.ParseDurationField("interval", tc.Interval)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", tc.Name, err)
	}
	maxRunning, err := config.ParseDurationField("max_running_time", tc.MaxRunningTime)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", tc.Name, err)
	}
	windows := make([]scheduler.TimeWindow, 0, len(tc.Windows))
	for _, w := range tc.Windows {
		win, err := scheduler.ParseWindow(w)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", tc.Name, err)
		}
		windows = append(windows, win)
	}
	timeout, err := config.ParseDurationField("body.timeout", tc.Body.Timeout)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", tc.Name, err)
	}

	sc := scheduler.TaskConfig{
		Name:           tc.Name,
		Priority:       prio,
		Interval:       interval,
		Cron:           tc.Cron,
		Windows:        windows,
		MaxRunningTime: maxRunning,
	}
	tlog := log.With().Str("task", tc.Name).Logger()
	switch tc.Body.Kind {
	case "command":
		sc.Run = tasks.Command(tc.Body.Command, timeout, tlog)
	case "http":
		sc.Run = tasks.HTTPCheck(tc.Body.URL, timeout, tlog)
	case "speedtest":
		sc.RunInterruptible = tasks.Speedtest(tlog)
	default:
		return nil, fmt.Errorf("task %q: unknown body kind %q", tc.Name, tc.Body.Kind)
	}
	return scheduler.NewTask(sc)
}
