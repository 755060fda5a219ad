// Package scheduler triggers collection runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context)

// Scheduler runs a single job on a standard five-field cron expression.
// Overlapping triggers are skipped while the previous run is still going.
type Scheduler struct {
	cron   *cron.Cron
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	// extra tracks runs started by RunNow outside the cron schedule.
	extra sync.WaitGroup
}

// New parses the cron expression expr and registers job. The job's context is cancelled by Stop.
func New(expr string, job Job, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger: logger}

	c := cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)
	if _, err := c.AddFunc(expr, func() { job(ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule %q: %w", expr, err)
	}

	return &Scheduler{cron: c, job: job, ctx: ctx, cancel: cancel, logger: logger}, nil
}

// Start begins triggering the job in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("collection scheduled", "next_run", e.Next)
	}
}

// RunNow triggers the job once in the background, outside the schedule.
// Stop waits for it like any scheduled run.
func (s *Scheduler) RunNow() {
	s.extra.Add(1)
	go func() {
		defer s.extra.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled job panicked", "panic", r)
			}
		}()
		s.job(s.ctx)
	}()
}

// Stop cancels the running jobs' context and returns a context that is done
// once every job, scheduled or started by RunNow, has returned.
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	cronDone := s.cron.Stop()

	ctx, done := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.extra.Wait()
		done()
	}()
	return ctx
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
