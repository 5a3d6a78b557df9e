package scheduler

import (
	"sort"
	"time"
)

// TaskInfo is a point-in-time view of one registered task.
type TaskInfo struct {
	ID             string
	Name           string
	Priority       Priority
	Status         Status
	Interval       time.Duration
	MaxRunningTime time.Duration
	Windows        []TimeWindow
	LastRun        time.Time
	NextRun        time.Time
	ErrorCount     int
}

// Snapshot is a point-in-time view of the scheduler, for status commands and
// logging. Tasks are listed in registration order.
type Snapshot struct {
	Mode          Mode
	Running       bool
	CheckInterval time.Duration
	Tasks         []TaskInfo
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Mode:          s.mode,
		Running:       s.running,
		CheckInterval: s.tick,
	}
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].seq < tasks[j].seq })
	for _, t := range tasks {
		snap.Tasks = append(snap.Tasks, t.info())
	}
	return snap
}

func (t *Task) info() TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskInfo{
		ID:             t.id,
		Name:           t.name,
		Priority:       t.priority,
		Status:         t.status,
		Interval:       t.interval,
		MaxRunningTime: t.maxRunningTime,
		Windows:        append([]TimeWindow(nil), t.windows...),
		LastRun:        t.lastRun,
		NextRun:        t.nextRun,
		ErrorCount:     t.errorCount,
	}
}
