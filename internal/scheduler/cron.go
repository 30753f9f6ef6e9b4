package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/deusflow/feedgen/internal/logger"
)

// Scheduler dispatches a fixed job list on a cron expression. A tick that fires while
// the previous dispatch is still running is skipped.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *Dispatcher
	jobs       []Job

	mu      sync.Mutex
	running bool
	entry   cron.EntryID
}

func NewScheduler(spec string, dispatcher *Dispatcher, jobs []Job) (*Scheduler, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("scheduler needs at least one job")
	}
	s := &Scheduler{cron: cron.New(), dispatcher: dispatcher, jobs: jobs}
	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Warn("scheduled dispatch skipped, previous one still running")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	logger.Info("cron triggered feed dispatch", "jobs", len(s.jobs))
	s.dispatcher.Dispatch(context.Background(), s.jobs)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("scheduler started", "next", s.cron.Entry(s.entry).Next)
}

// Stop stops new ticks and returns a context done when the running dispatch ends.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
