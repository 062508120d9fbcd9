package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Default cron expressions, with a leading seconds field.
const (
	DefaultExpireCron = "0 0 2 * * *"
	DefaultWarnCron   = "0 0 9 * * MON"
	DefaultDeleteCron = "0 0 3 1 * *"
)

// Schedule holds the cron expression for each job.
type Schedule struct {
	Expire   string
	Warn     string
	Delete   string
	Location *time.Location
	// JobTimeout bounds a single run. Zero means no bound.
	JobTimeout time.Duration
}

// Scheduler triggers the lifecycle jobs from cron expressions.
type Scheduler struct {
	cron    *cron.Cron
	runner  *Runner
	logger  *slog.Logger
	timeout time.Duration
	entries map[Job]cron.EntryID
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewScheduler parses every expression up front so a bad schedule fails at
// startup.
func NewScheduler(runner *Runner, schedule Schedule, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc := schedule.Location
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    c,
		runner:  runner,
		logger:  logger,
		timeout: schedule.JobTimeout,
		entries: make(map[Job]cron.EntryID, 3),
		baseCtx: baseCtx,
		cancel:  cancel,
	}

	for job, expr := range map[Job]string{
		JobExpire: orDefault(schedule.Expire, DefaultExpireCron),
		JobWarn:   orDefault(schedule.Warn, DefaultWarnCron),
		JobDelete: orDefault(schedule.Delete, DefaultDeleteCron),
	} {
		id, err := c.AddFunc(expr, s.trigger(job))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %s job %q: %w", job, expr, err)
		}
		s.entries[job] = id
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// in-flight jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.logger.InfoContext(ctx, "lifecycle scheduler started", "jobs", len(s.entries))
	<-ctx.Done()

	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
	s.logger.Info("lifecycle scheduler stopped")
	return nil
}

// Next reports when job fires next. The zero time means the scheduler is
// not running.
func (s *Scheduler) Next(job Job) time.Time {
	id, ok := s.entries[job]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

func (s *Scheduler) trigger(job Job) func() {
	return func() {
		ctx := s.baseCtx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		// Failures are logged by the runner; the next trigger retries.
		_, _ = s.runner.Run(ctx, job)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
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
