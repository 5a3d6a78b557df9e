package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config controls a Scheduler.
type Config struct {
	Mode          Mode
	CheckInterval time.Duration // tick period; DefaultCheckInterval if zero
	StopTimeout   time.Duration // background stop wait bound; DefaultStopTimeout if zero
	Recorder      RunRecorder   // optional per-cycle sink
}

// Scheduler owns a collection of tasks and drives them from a single
// dispatcher goroutine: the caller's own in Foreground mode, a dedicated one
// in Background mode. Tasks run sequentially within a tick, so a slow task
// delays the rest of that tick's batch; there is no parallel task execution.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	seq     uint64
	mode    Mode
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	tick        time.Duration
	stopTimeout time.Duration
	rec         RunRecorder
	log         zerolog.Logger

	// warn rate-limits failure/abort logging so a task that trips every
	// tick cannot flood the log.
	warn *rate.Limiter
}

// New builds a stopped scheduler. Call Start to run the dispatch loop.
func New(cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Scheduler{
		tasks:       map[string]*Task{},
		mode:        cfg.Mode,
		tick:        cfg.CheckInterval,
		stopTimeout: cfg.StopTimeout,
		rec:         cfg.Recorder,
		log:         log,
		warn:        rate.NewLimiter(rate.Every(5*time.Second), 3),
	}
}

// AddTask registers the task and returns its id. Safe while the scheduler
// runs; the task becomes eligible on the next tick.
func (s *Scheduler) AddTask(t *Task) string {
	s.mu.Lock()
	s.seq++
	t.seq = s.seq
	s.tasks[t.id] = t
	s.mu.Unlock()
	s.log.Debug().Str("task", t.name).Str("id", t.id).Stringer("priority", t.priority).Msg("task registered")
	return t.id
}

// RemoveTask stops the task, then removes it. No-op if the id is unknown.
func (s *Scheduler) RemoveTask(id string) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	// Stop outside the scheduler lock: Stop fires status callbacks, and a
	// callback may re-enter the scheduler.
	t.Stop()
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
	s.log.Debug().Str("task", t.name).Str("id", id).Msg("task removed")
}

// GetTask returns the registered task with the given id.
func (s *Scheduler) GetTask(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Mode returns the current run mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode changes the run mode; it fails while the scheduler is running.
func (s *Scheduler) SetMode(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunningMode
	}
	s.mode = m
	return nil
}

// IsRunning reports whether the dispatch loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start runs the dispatch loop: blocking in Foreground mode until Stop is
// called from elsewhere, returning immediately in Background mode. Starting
// a running scheduler is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done, mode := s.stopCh, s.done, s.mode
	s.mu.Unlock()

	if mode == Background {
		go s.loop(stopCh, done)
		return nil
	}
	s.loop(stopCh, done)
	return nil
}

// Stop signals the dispatch loop to exit. Idempotent. In Background mode it
// waits up to the configured stop timeout for the dispatcher to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done, mode := s.done, s.mode
	s.mu.Unlock()

	if mode != Background {
		return
	}
	select {
	case <-done:
	case <-time.After(s.stopTimeout):
		s.log.Warn().Dur("timeout", s.stopTimeout).Msg("dispatcher did not exit before stop timeout")
	}
}

func (s *Scheduler) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	s.log.Info().Dur("tick", s.tick).Stringer("mode", s.Mode()).Msg("scheduler started")
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		s.dispatch(stopCh)
		select {
		case <-stopCh:
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// dispatch runs one tick: snapshot the due, eligible tasks, order them by
// priority (descending, registration order breaking ties), and run them
// sequentially, re-checking the stop signal between tasks.
func (s *Scheduler) dispatch(stopCh <-chan struct{}) {
	batch := s.ready(time.Now())
	if len(batch) == 0 {
		return
	}
	sort.Slice(batch, func(i, j int) bool {
		if batch[i].priority != batch[j].priority {
			return batch[i].priority > batch[j].priority
		}
		return batch[i].seq < batch[j].seq
	})
	for _, t := range batch {
		select {
		case <-stopCh:
			return
		default:
		}
		started := time.Now()
		out, err := t.runCycle()
		s.report(t, started, out, err)
	}
}

func (s *Scheduler) ready(now time.Time) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var batch []*Task
	for _, t := range s.tasks {
		if t.due(now) {
			batch = append(batch, t)
		}
	}
	return batch
}

func (s *Scheduler) report(t *Task, started time.Time, out runOutcome, err error) {
	took := time.Since(started)
	switch out {
	case runCompleted:
		s.log.Debug().Str("task", t.name).Dur("took", took).Time("next", t.NextRun()).Msg("task completed")
	case runFailed:
		if s.warn.Allow() {
			s.log.Warn().Str("task", t.name).Err(err).Dur("took", took).Int("errors", t.ErrorCount()).Msg("task failed")
		}
	case runAborted:
		if s.warn.Allow() {
			s.log.Warn().Str("task", t.name).Dur("took", took).Str("status", string(t.Status())).Msg("task cycle aborted")
		}
	}
	if s.rec != nil {
		s.rec.Record(RunRecord{
			TaskID:   t.id,
			TaskName: t.name,
			Priority: t.priority,
			Started:  started,
			Duration: took,
			Outcome:  out.outcome(),
			Err:      err,
		})
	}
}
