package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"elibrary-users/pkg/platform/sentinel"
)

// DefaultLockTTL bounds how long a crashed replica can block a job.
const DefaultLockTTL = 10 * time.Minute

// Runner wraps Jobs with a cross-replica lock per job.
type Runner struct {
	jobs    *Jobs
	locker  Locker
	lockTTL time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

func NewRunner(jobs *Jobs, locker Locker, lockTTL time.Duration, logger *slog.Logger, metrics *Metrics) *Runner {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{jobs: jobs, locker: locker, lockTTL: lockTTL, logger: logger, metrics: metrics}
}

// Run executes job unless another replica holds its lock, in which case the
// result is marked Skipped.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	unlock, err := r.locker.TryLock(ctx, "lifecycle:"+string(job), r.lockTTL)
	if errors.Is(err, sentinel.ErrLocked) {
		r.metrics.incSkipped(job, "locked")
		r.logger.InfoContext(ctx, "lifecycle job already running elsewhere", "job", job)
		return Result{Job: job, Skipped: true}, nil
	}
	if err != nil {
		r.metrics.incFailure(job)
		r.logger.ErrorContext(ctx, "failed to acquire lifecycle lock",
			"job", job,
			"error", err,
		)
		return Result{Job: job}, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			r.logger.WarnContext(ctx, "failed to release lifecycle lock",
				"job", job,
				"error", err,
			)
		}
	}()

	return r.jobs.Run(ctx, job)
}
