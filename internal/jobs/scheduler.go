// Package jobs runs periodic maintenance next to the HTTP server.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type scheduledJob struct {
	name     string
	interval time.Duration
	run      cron.Job
}

// Scheduler runs each job once at start and then at its interval. A run
// still going when the next one is due is skipped, and panics are
// recovered and logged.
type Scheduler struct {
	logger *slog.Logger
	chain  cron.Chain
	jobs   []scheduledJob

	mu      sync.Mutex
	cron    *cron.Cron
	runCtx  context.Context
	cancel  context.CancelFunc
	initial sync.WaitGroup
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		logger: logger,
		chain:  cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	}
}

// Every registers job to run at the given interval, rounded up to whole
// seconds. Call before Start.
func (s *Scheduler) Every(interval time.Duration, job Job) {
	s.jobs = append(s.jobs, scheduledJob{
		name:     job.Name(),
		interval: interval,
		run:      s.chain.Then(s.wrap(job)),
	})
}

func (s *Scheduler) wrap(job Job) cron.Job {
	return cron.FuncJob(func() {
		if err := job.Run(s.runContext()); err != nil {
			s.logger.Error("Error executing job", slog.String("job", job.Name()), slog.Any("error", err))
		}
	})
}

var stoppedCtx = func() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}()

// runContext returns the context of the current run, cancelled once Stop is called.
func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		return stoppedCtx
	}
	return s.runCtx
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.logger.Info("Background jobs already running.")
		return nil
	}
	if len(s.jobs) == 0 {
		s.logger.Info("No background jobs configured.")
		return nil
	}

	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithLogger(cronLogger{logger: s.logger}))

	for _, sj := range s.jobs {
		s.logger.Info("Starting background job", slog.String("job", sj.name), slog.Duration("interval", sj.interval))
		s.cron.Schedule(cron.Every(sj.interval), sj.run)

		s.initial.Add(1)
		go func(run cron.Job) {
			defer s.initial.Done()
			run.Run()
		}(sj.run)
	}
	s.cron.Start()

	s.logger.Info("Background jobs started", slog.Int("jobs", len(s.jobs)))
	return nil
}

// Stop halts all background jobs and waits for running ones to return.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel, s.runCtx = nil, nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	s.logger.Info("Stopping background jobs...")
	cancel()
	<-c.Stop().Done()
	s.initial.Wait()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
