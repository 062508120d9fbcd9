// Package lifecycle runs the scheduled student account transitions: expiry
// after graduation, an advance warning, and the purge of long-expired
// accounts. Each job is a predicate plus a transform applied to every
// qualifying identity inside one transaction.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"elibrary-users/internal/events"
	"elibrary-users/internal/identity/models"
)

// Job names a lifecycle job. Used for logging, metrics and lock keys.
type Job string

const (
	JobExpire Job = "expire"
	JobWarn   Job = "warn"
	JobDelete Job = "delete"
)

const (
	DefaultWarningLeadYears  = 1
	DefaultDeleteGraceMonths = 6
)

// Store is the subset of the identity store the jobs need. Lists run inside
// RunInTx so Postgres can lock the selected rows.
type Store interface {
	ListExpiredStudents(ctx context.Context, currentYear int) ([]*models.Identity, error)
	ListStudentsNearingExpiry(ctx context.Context, targetYear int) ([]*models.Identity, error)
	ListByRoleAndStatus(ctx context.Context, role models.Role, status models.Status) ([]*models.Identity, error)
	Update(ctx context.Context, identity *models.Identity) error
	DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Config switches the jobs and sets their windows.
type Config struct {
	// CleanupEnabled gates all three jobs. When false a trigger is a no-op.
	CleanupEnabled bool
	// NotifyEnabled emits a lifecycle event per affected identity.
	NotifyEnabled bool
	// WarningLeadYears selects students graduating this many years ahead.
	WarningLeadYears int
	// DeleteGraceMonths is how long an account stays expired before purge.
	DeleteGraceMonths int
}

// Result summarises one job run.
type Result struct {
	Job      Job
	Selected int
	Mutated  int64
	Skipped  bool
}

// Jobs executes the lifecycle transitions against a Store.
type Jobs struct {
	store     Store
	cfg       Config
	logger    *slog.Logger
	metrics   *Metrics
	publisher events.Publisher
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Jobs)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Jobs) {
		j.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(j *Jobs) {
		j.metrics = m
	}
}

// WithEventPublisher sets where lifecycle notifications go when
// Config.NotifyEnabled is true.
func WithEventPublisher(publisher events.Publisher) Option {
	return func(j *Jobs) {
		j.publisher = publisher
	}
}

func WithClock(now func() time.Time) Option {
	return func(j *Jobs) {
		j.now = now
	}
}

func NewJobs(store Store, cfg Config, opts ...Option) *Jobs {
	if cfg.WarningLeadYears <= 0 {
		cfg.WarningLeadYears = DefaultWarningLeadYears
	}
	if cfg.DeleteGraceMonths <= 0 {
		cfg.DeleteGraceMonths = DefaultDeleteGraceMonths
	}
	j := &Jobs{
		store:  store,
		cfg:    cfg,
		logger: slog.Default(),
		tracer: otel.Tracer("elibrary-users/lifecycle"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run dispatches to the named job.
func (j *Jobs) Run(ctx context.Context, job Job) (Result, error) {
	switch job {
	case JobExpire:
		return j.Expire(ctx)
	case JobWarn:
		return j.Warn(ctx)
	case JobDelete:
		return j.Delete(ctx)
	}
	return Result{}, fmt.Errorf("unknown lifecycle job %q", job)
}

// Expire moves every active student whose graduation year has passed to
// StatusExpired.
func (j *Jobs) Expire(ctx context.Context) (Result, error) {
	return j.run(ctx, JobExpire, func(ctx context.Context, now time.Time, res *Result) ([]events.UserEvent, error) {
		currentYear := now.Year()
		j.logger.InfoContext(ctx, "running student account expiry check",
			"current_year", currentYear,
		)

		candidates, err := j.store.ListExpiredStudents(ctx, currentYear)
		if err != nil {
			return nil, fmt.Errorf("list expired students: %w", err)
		}

		var pending []events.UserEvent
		for _, identity := range candidates {
			if !identity.IsExpiryCandidate(currentYear) {
				continue
			}
			res.Selected++
			j.logger.InfoContext(ctx, "expiring student account",
				"user_id", identity.ID,
				"email", identity.Email,
				"grad_year", *identity.GradYear,
			)
			identity.ApplyExpiry(now)
			if err := j.store.Update(ctx, identity); err != nil {
				return nil, fmt.Errorf("expire identity %s: %w", identity.ID, err)
			}
			res.Mutated++
			pending = append(pending, events.NewUserEvent(events.TypeAccountExpired, identity,
				fmt.Sprintf("Student account expired: graduation year %d has passed", *identity.GradYear), now))
		}
		return pending, nil
	})
}

// Warn stamps the warning marker on active students graduating
// WarningLeadYears from now. Students already warned are left alone.
func (j *Jobs) Warn(ctx context.Context) (Result, error) {
	return j.run(ctx, JobWarn, func(ctx context.Context, now time.Time, res *Result) ([]events.UserEvent, error) {
		targetYear := now.Year() + j.cfg.WarningLeadYears
		j.logger.InfoContext(ctx, "checking for accounts nearing expiry",
			"target_year", targetYear,
		)

		candidates, err := j.store.ListStudentsNearingExpiry(ctx, targetYear)
		if err != nil {
			return nil, fmt.Errorf("list students nearing expiry: %w", err)
		}

		var pending []events.UserEvent
		for _, identity := range candidates {
			if !identity.IsWarningCandidate(targetYear) {
				continue
			}
			res.Selected++
			j.logger.InfoContext(ctx, "warning student of upcoming expiry",
				"user_id", identity.ID,
				"email", identity.Email,
				"grad_year", *identity.GradYear,
			)
			identity.ApplyExpiryWarning(now)
			if err := j.store.Update(ctx, identity); err != nil {
				return nil, fmt.Errorf("warn identity %s: %w", identity.ID, err)
			}
			res.Mutated++
			pending = append(pending, events.NewUserEvent(events.TypeAccountExpiryWarning, identity,
				fmt.Sprintf("Student account will expire after graduation in %d", targetYear), now))
		}
		return pending, nil
	})
}

// Delete removes student-role identities that have been expired for longer
// than DeleteGraceMonths.
func (j *Jobs) Delete(ctx context.Context) (Result, error) {
	return j.run(ctx, JobDelete, func(ctx context.Context, now time.Time, res *Result) ([]events.UserEvent, error) {
		cutoff := monthsBefore(now, j.cfg.DeleteGraceMonths)
		j.logger.InfoContext(ctx, "running cleanup of old expired accounts",
			"cutoff", cutoff,
		)

		expired, err := j.store.ListByRoleAndStatus(ctx, models.RoleStudent, models.StatusExpired)
		if err != nil {
			return nil, fmt.Errorf("list expired students: %w", err)
		}

		var (
			ids     []uuid.UUID
			pending []events.UserEvent
		)
		for _, identity := range expired {
			if !identity.IsPurgeCandidate(cutoff) {
				continue
			}
			j.logger.InfoContext(ctx, "deleting expired student account",
				"user_id", identity.ID,
				"email", identity.Email,
				"updated_at", identity.UpdatedAt,
			)
			ids = append(ids, identity.ID)
			pending = append(pending, events.NewUserEvent(events.TypeAccountPurged, identity,
				"Expired student account removed", now))
		}
		res.Selected = len(ids)
		if len(ids) == 0 {
			return nil, nil
		}

		deleted, err := j.store.DeleteMany(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("delete expired identities: %w", err)
		}
		res.Mutated = deleted
		return pending, nil
	})
}

// monthsBefore steps back whole calendar months, clamping the day to the end
// of the target month so Aug 31 minus six months is Feb 28, not Mar 3.
func monthsBefore(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month-time.Month(months), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(day, lastDay)-1)
}

type jobBody func(ctx context.Context, now time.Time, res *Result) ([]events.UserEvent, error)

// run applies the cleanup switch, then executes body in one transaction.
// Notifications go out only after commit.
func (j *Jobs) run(ctx context.Context, job Job, body jobBody) (Result, error) {
	res := Result{Job: job}
	if !j.cfg.CleanupEnabled {
		j.metrics.incSkipped(job, "disabled")
		j.logger.DebugContext(ctx, "lifecycle cleanup disabled, skipping", "job", job)
		res.Skipped = true
		return res, nil
	}

	ctx, span := j.tracer.Start(ctx, "lifecycle."+string(job))
	defer span.End()

	start := time.Now()
	now := j.now()

	var pending []events.UserEvent
	err := j.store.RunInTx(ctx, func(txCtx context.Context) error {
		res.Selected, res.Mutated = 0, 0
		var err error
		pending, err = body(txCtx, now, &res)
		return err
	})
	if err != nil {
		j.metrics.incFailure(job)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		j.logger.ErrorContext(ctx, "lifecycle job failed, rolled back",
			"job", job,
			"error", err,
		)
		return Result{Job: job}, err
	}

	j.metrics.observeRun(job, res.Mutated, start)
	span.SetAttributes(
		attribute.Int("lifecycle.selected", res.Selected),
		attribute.Int64("lifecycle.mutated", res.Mutated),
	)
	j.logger.InfoContext(ctx, "lifecycle job completed",
		"job", job,
		"count", res.Mutated,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if j.cfg.NotifyEnabled {
		j.notify(ctx, pending)
	}
	return res, nil
}

func (j *Jobs) notify(ctx context.Context, pending []events.UserEvent) {
	if j.publisher == nil {
		return
	}
	for _, event := range pending {
		if err := j.publisher.Publish(ctx, event); err != nil {
			j.logger.WarnContext(ctx, "failed to publish lifecycle event",
				"event_type", event.EventType,
				"user_id", event.UserID,
				"error", err,
			)
		}
	}
}
