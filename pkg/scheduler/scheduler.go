package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is a named periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Fn       func(context.Context) error
}

// Scheduler runs background maintenance jobs, one goroutine per task. The
// trade expiry sweep is registered here; task errors are logged and the
// task keeps its schedule.
type Scheduler struct {
	tasks   []*Task
	logger  *logrus.Logger
	running bool
	mutex   sync.Mutex
	cancel  context.CancelFunc
	done    sync.WaitGroup
}

// New creates an empty scheduler.
func New(logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{logger: logger}
}

// AddTask registers a task. Tasks added after Start are ignored until the
// next Start.
func (s *Scheduler) AddTask(name string, interval time.Duration, fn func(context.Context) error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tasks = append(s.tasks, &Task{
		Name:     name,
		Interval: interval,
		Fn:       fn,
	})
}

// Start launches every registered task. Idempotent while running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, task := range s.tasks {
		s.done.Add(1)
		go s.runTask(ctx, task)
	}

	s.logger.WithField("tasks", len(s.tasks)).Info("scheduler started")
}

// Stop cancels every task and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mutex.Unlock()

	s.done.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runTask(ctx context.Context, task *Task) {
	defer s.done.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	log := s.logger.WithField("task", task.Name)

	// One immediate run at startup so a restart never delays the sweep a
	// full interval
	if err := task.Fn(ctx); err != nil {
		log.WithError(err).Warn("task failed")
	}

	for {
		select {
		case <-ticker.C:
			if err := task.Fn(ctx); err != nil {
				log.WithError(err).Warn("task failed")
			}
		case <-ctx.Done():
			log.Debug("task stopped")
			return
		}
	}
}
