package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evcc-io/evcc/util"
	"github.com/robfig/cron/v3"
)

// Scheduler runs jobs at fixed intervals
type Scheduler struct {
	mu   sync.Mutex
	log  *util.Logger
	cron *cron.Cron
	ctx  context.Context
	jobs map[string]cron.EntryID
}

type cronLogger struct {
	log *util.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.TRACE.Println(append([]any{msg}, keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.ERROR.Println(append([]any{msg, err}, keysAndValues...)...)
}

// New creates a scheduler. Jobs receive ctx and stop being started once it is done.
func New(ctx context.Context) *Scheduler {
	log := util.NewLogger("scheduler")
	logger := cronLogger{log}

	return &Scheduler{
		log: log,
		ctx: ctx,
		cron: cron.New(cron.WithLogger(logger), cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		jobs: make(map[string]cron.EntryID),
	}
}

// Start starts running jobs
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Track runs fn every interval and returns a function removing the job.
// Tracking an existing name replaces its job.
func (s *Scheduler) Track(name string, interval time.Duration, fn func(context.Context)) (func(), error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval for %s: %v", name, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
	}

	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if s.ctx.Err() != nil {
			return
		}
		fn(s.ctx)
	}))
	s.jobs[name] = id

	s.log.DEBUG.Printf("tracking %s every %v", name, interval)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if cur, ok := s.jobs[name]; ok && cur == id {
			s.cron.Remove(id)
			delete(s.jobs, name)
		}
	}, nil
}

// Jobs returns the number of tracked jobs
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
