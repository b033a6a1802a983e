// Package scheduler runs pipeline jobs on cron schedules inside the server
// process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/content-notifier/internal/runlock"
	"github.com/robfig/cron/v3"
)

// DefaultTimeout bounds a single job execution.
const DefaultTimeout = 10 * time.Minute

// Job is a named unit of scheduled work.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler wraps a cron runner. Overlapping executions of the same job are
// skipped and panics are recovered.
type Scheduler struct {
	logger *slog.Logger
	parser cron.Parser
	c      *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	jobs    []string
}

// New creates a scheduler. Specs use the five-field format plus descriptors
// such as @every 5m and @hourly.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		logger: logger,
		parser: parser,
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job. An empty spec leaves the job disabled.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		s.logger.Info("scheduled job disabled", "job", job.Name)
		return nil
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: run function is required", job.Name)
	}
	if _, err := s.parser.Parse(job.Spec); err != nil {
		return fmt.Errorf("job %s: parse schedule %q: %w", job.Name, job.Spec, err)
	}
	if job.Timeout <= 0 {
		job.Timeout = DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.c.AddFunc(job.Spec, func() { s.execute(job) }); err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	s.jobs = append(s.jobs, job.Name)
	s.logger.Info("scheduled job registered", "job", job.Name, "spec", job.Spec)
	return nil
}

// Jobs returns the names of registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Start begins firing jobs. It is a no-op when nothing is registered.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || len(s.jobs) == 0 {
		return
	}
	s.started = true
	s.c.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	s.cancel()
	if !started {
		return nil
	}

	select {
	case <-s.c.Stop().Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

func (s *Scheduler) execute(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	duration := time.Since(start)

	switch {
	case err == nil:
		s.logger.Info("scheduled job completed", "job", job.Name, "duration", duration)
	case errors.Is(err, runlock.ErrRunInProgress):
		s.logger.Info("scheduled job skipped, run in progress", "job", job.Name)
	default:
		s.logger.Error("scheduled job failed", "job", job.Name, "duration", duration, "error", err)
	}
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
