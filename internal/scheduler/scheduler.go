package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"retail-ledger/internal/core/ports"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrUnknownJob is returned by Trigger for a job that was never registered.
var ErrUnknownJob = errors.New("unknown job")

type entry struct {
	job     ports.ScheduledJob
	spec    string
	timeout time.Duration
	id      cron.EntryID
}

// Scheduler runs registered jobs on cron specs. A job that is still running
// when its next tick fires is skipped, and a panicking job is logged and
// recovered.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	jobs map[string]*entry
}

func New(log zerolog.Logger) *Scheduler {
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
}

// Register schedules job on spec (standard five-field cron or a descriptor
// such as "@every 1m"). A positive timeout bounds each run.
func (s *Scheduler) Register(spec string, job ports.ScheduledJob, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}

	e := &entry{job: job, spec: spec, timeout: timeout}
	id, err := s.cron.AddFunc(spec, func() {
		_ = s.run(s.ctx, e)
	})
	if err != nil {
		return fmt.Errorf("schedule %q (%s): %w", name, spec, err)
	}
	e.id = id
	s.jobs[name] = e

	s.log.Info().Str("job", name).Str("schedule", spec).Dur("timeout", timeout).Msg("job registered")
	return nil
}

// Start begins firing scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop cancels running jobs and waits for them to return, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}

// Trigger runs a registered job immediately on the caller's goroutine.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, e)
}

// Next reports the next scheduled run of a job; zero before Start.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(e.id).Next
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	name := e.job.Name()
	start := time.Now()
	err := e.job.Run(ctx)
	elapsed := time.Since(start)

	if err != nil {
		s.log.Error().Err(err).Str("job", name).Dur("elapsed", elapsed).Msg("job failed")
		return err
	}
	s.log.Info().Str("job", name).Dur("elapsed", elapsed).Msg("job completed")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
