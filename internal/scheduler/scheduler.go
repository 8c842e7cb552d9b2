// Package scheduler implements the named periodic task registry of spec
// §4.9: registration replaces any existing task with the same name, each
// invocation is isolated so a panicking/erroring task never brings down the
// scheduler, and stopAll cancels every timer and awaits in-flight callbacks
// up to a bounded deadline.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Callback is one scheduled unit of work. It receives a context cancelled
// when the scheduler is stopped.
type Callback func(ctx context.Context) error

// TaskStatus is the per-task failure/lastError bookkeeping spec §4.9 names.
type TaskStatus struct {
	Name        string
	IntervalMs  int
	Runs        int64
	Failures    int64
	LastError   error
	LastRunAt   int64
}

type task struct {
	name       string
	intervalMs int
	callback   Callback
	cancel     context.CancelFunc
	done       chan struct{}

	mu     sync.Mutex
	status TaskStatus
}

// Scheduler runs named periodic tasks on their own goroutine/ticker.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*task
	log   zerolog.Logger
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{tasks: make(map[string]*task), log: log}
}

// Register installs (or replaces) a named periodic task, starting it
// immediately. Registering a name that's already running stops the old
// instance first (spec §4.9 "Registration replaces any existing task with
// the same name").
func (s *Scheduler) Register(name string, intervalMs int, cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tasks[name]; ok {
		existing.cancel()
		<-existing.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		name:       name,
		intervalMs: intervalMs,
		callback:   cb,
		cancel:     cancel,
		done:       make(chan struct{}),
		status:     TaskStatus{Name: name, IntervalMs: intervalMs},
	}
	s.tasks[name] = t
	go s.run(ctx, t)
}

func (s *Scheduler) run(ctx context.Context, t *task) {
	defer close(t.done)
	ticker := time.NewTicker(time.Duration(t.intervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.invoke(ctx, t)
		}
	}
}

// invoke wraps one callback execution so a panic or error is captured and
// counted per task, never crashing the scheduler (spec §4.9).
func (s *Scheduler) invoke(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			t.mu.Lock()
			t.status.Failures++
			t.status.LastError = panicError{r}
			t.mu.Unlock()
			s.log.Error().Str("task", t.name).Interface("panic", r).Msg("scheduled task panicked")
		}
	}()

	err := t.callback(ctx)

	t.mu.Lock()
	t.status.Runs++
	t.status.LastRunAt = time.Now().UnixMilli()
	if err != nil {
		t.status.Failures++
		t.status.LastError = err
	}
	t.mu.Unlock()

	if err != nil {
		s.log.Error().Str("task", t.name).Err(err).Msg("scheduled task failed")
	}
}

type panicError struct{ v any }

func (p panicError) Error() string { return "panic in scheduled task" }

// Status returns a snapshot of one task's counters, or false if no task by
// that name is registered.
func (s *Scheduler) Status(name string) (TaskStatus, bool) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return TaskStatus{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, true
}

// StopAll cancels every running task and waits for in-flight callbacks to
// finish, up to deadline. Returns the names of tasks that did not stop in
// time (spec §4.9 "awaits in-flight callbacks up to a bounded deadline").
func (s *Scheduler) StopAll(deadline time.Duration) []string {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.cancel()
		tasks = append(tasks, t)
	}
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	deadlineAt := time.Now().Add(deadline)
	var stillRunning []string
	for _, t := range tasks {
		remaining := time.Until(deadlineAt)
		if remaining <= 0 {
			select {
			case <-t.done:
			default:
				stillRunning = append(stillRunning, t.name)
			}
			continue
		}
		select {
		case <-t.done:
		case <-time.After(remaining):
			stillRunning = append(stillRunning, t.name)
		}
	}
	return stillRunning
}
