package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"elibrary-users/internal/events"
	"elibrary-users/internal/identity/metrics"
	"elibrary-users/internal/identity/models"
	"elibrary-users/internal/identity/store"
	"elibrary-users/internal/identity/validation"
	dErrors "elibrary-users/pkg/domain-errors"
)

// Store is the persistence the service needs. Methods called inside the
// RunInTx callback must use the context it receives.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByMatricNumber(ctx context.Context, matric string) (bool, error)
	ExistsByStaffID(ctx context.Context, staffID string) (bool, error)
	ListAll(ctx context.Context) ([]*models.Identity, error)
	ListByRole(ctx context.Context, role models.Role) ([]*models.Identity, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Identity, error)
	ListByDepartment(ctx context.Context, department string) ([]*models.Identity, error)
	Search(ctx context.Context, keyword string) ([]*models.Identity, error)
	ListExpiredStudents(ctx context.Context, currentYear int) ([]*models.Identity, error)
	CountByRole(ctx context.Context, role models.Role) (int64, error)
	CountByStatus(ctx context.Context, status models.Status) (int64, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, identity *models.Identity) error
	Update(ctx context.Context, identity *models.Identity) error
	Delete(ctx context.Context, id uuid.UUID) error
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EmailPolicy decides which email domains may register.
type EmailPolicy interface {
	IsAllowed(email string) bool
	AllowedDomains() []string
}

// RegistrationValidator checks account-type rules on a registration.
type RegistrationValidator interface {
	Validate(req models.RegistrationRequest) validation.Violations
}

// EventPublisher hands user events to the bus without waiting for delivery.
type EventPublisher interface {
	Publish(ctx context.Context, event events.UserEvent) error
}

// Service registers identities and serves lookups and administrative edits.
type Service struct {
	store     Store
	policy    EmailPolicy
	validator RegistrationValidator
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEventPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs a Service.
func New(identities Store, policy EmailPolicy, validator RegistrationValidator, opts ...Option) *Service {
	s := &Service{
		store:     identities,
		policy:    policy,
		validator: validator,
		logger:    slog.Default(),
		tracer:    otel.Tracer("elibrary-users/identity"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register runs the registration pipeline. Checks run in a fixed order and
// the first failure wins: email domain, duplicate email, duplicate matric
// number, duplicate staff id, then account-type rules. Nothing is written
// unless every check passes.
func (s *Service) Register(ctx context.Context, req models.RegistrationRequest) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "identity.Register",
		trace.WithAttributes(attribute.String("account_type", string(req.AccountType))))
	defer span.End()
	defer s.metrics.ObserveRegistration(time.Now())

	req.Normalize()
	s.logger.InfoContext(ctx, "registering new user", "email", req.Email)

	if !s.policy.IsAllowed(req.Email) {
		return nil, s.reject(ctx, span, req, dErrors.DomainRejected(
			"Email must be from an approved faculty domain",
			s.policy.AllowedDomains(),
		))
	}

	var identity *models.Identity
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.checkUniqueness(ctx, req); err != nil {
			return err
		}
		if err := s.validator.Validate(req).Err(); err != nil {
			return err
		}
		identity = models.NewIdentity(uuid.New(), req, s.now())
		if err := s.store.Create(ctx, identity); err != nil {
			return translateWriteError(err, "failed to create user")
		}
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, span, req, ensureCoded(err, "failed to create user"))
	}

	span.SetAttributes(attribute.String("user_id", identity.ID.String()))
	s.metrics.IncrementRegistered(string(identity.AccountType))
	s.logger.InfoContext(ctx, "user registered successfully",
		"user_id", identity.ID,
		"email", identity.Email,
		"role", identity.Role,
	)
	s.emit(ctx, events.TypeUserRegistered, identity, "User registered successfully")
	return identity, nil
}

func (s *Service) checkUniqueness(ctx context.Context, req models.RegistrationRequest) error {
	exists, err := s.store.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check email")
	}
	if exists {
		return dErrors.Conflict(store.FieldEmail, "User with email "+req.Email+" already exists")
	}

	if req.MatricNumber != nil {
		exists, err = s.store.ExistsByMatricNumber(ctx, *req.MatricNumber)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check matric number")
		}
		if exists {
			return dErrors.Conflict(store.FieldMatricNumber, "User with matric number "+*req.MatricNumber+" already exists")
		}
	}

	if req.StaffID != nil {
		exists, err = s.store.ExistsByStaffID(ctx, *req.StaffID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check staff id")
		}
		if exists {
			return dErrors.Conflict(store.FieldStaffID, "User with staff ID "+*req.StaffID+" already exists")
		}
	}
	return nil
}

func (s *Service) reject(ctx context.Context, span trace.Span, req models.RegistrationRequest, err error) error {
	reason := string(dErrors.CodeInternal)
	if de, ok := dErrors.As(err); ok {
		reason = string(de.Code)
	}
	s.metrics.IncrementRejected(reason)
	span.SetStatus(codes.Error, reason)

	if reason == string(dErrors.CodeInternal) {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "registration failed", "email", req.Email, "error", err)
		return err
	}
	s.logger.InfoContext(ctx, "registration rejected", "email", req.Email, "reason", reason, "error", err)
	return err
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	identity, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translateLookupError(err, "User not found with ID: "+id.String())
	}
	return identity, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, translateLookupError(err, "User not found with email: "+email)
	}
	return identity, nil
}

func (s *Service) ListAll(ctx context.Context) ([]*models.Identity, error) {
	return wrapList(s.store.ListAll(ctx))
}

// ListByRole returns identities holding role.
func (s *Service) ListByRole(ctx context.Context, role models.Role) ([]*models.Identity, error) {
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid role: "+string(role))
	}
	return wrapList(s.store.ListByRole(ctx, role))
}

func (s *Service) ListByStatus(ctx context.Context, status models.Status) ([]*models.Identity, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid status: "+string(status))
	}
	return wrapList(s.store.ListByStatus(ctx, status))
}

func (s *Service) ListByDepartment(ctx context.Context, department string) ([]*models.Identity, error) {
	return wrapList(s.store.ListByDepartment(ctx, department))
}

// Search matches keyword against email, first and last name.
func (s *Service) Search(ctx context.Context, keyword string) ([]*models.Identity, error) {
	return wrapList(s.store.Search(ctx, keyword))
}

// ListExpiredStudents returns active students whose graduation year has
// passed and who are therefore due for expiry.
func (s *Service) ListExpiredStudents(ctx context.Context) ([]*models.Identity, error) {
	return wrapList(s.store.ListExpiredStudents(ctx, s.now().Year()))
}

// UpdateProfile overwrites only the supplied profile fields.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.Identity, error) {
	s.logger.InfoContext(ctx, "updating profile", "user_id", id)
	identity, err := s.mutate(ctx, id, func(identity *models.Identity) error {
		identity.ApplyProfile(update, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementMutation("profile")
	s.logger.InfoContext(ctx, "profile updated successfully", "user_id", id)
	return identity, nil
}

// UpdateRole replaces the role. Account-type requirements are not re-checked,
// so a staff account can be given the student role without a matric number.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) (*models.Identity, error) {
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid role: "+string(role))
	}
	s.logger.InfoContext(ctx, "updating role", "user_id", id, "role", role)
	identity, err := s.mutate(ctx, id, func(identity *models.Identity) error {
		identity.ApplyRole(role, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementMutation("role")
	s.logger.InfoContext(ctx, "role updated successfully", "user_id", id, "role", role)
	s.emit(ctx, events.TypeUserRoleChanged, identity, "Role changed to "+string(role))
	return identity, nil
}

// UpdateStatus applies an administrative status edit. The expired status is
// reserved for the lifecycle scheduler.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Identity, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid status: "+string(status))
	}
	s.logger.InfoContext(ctx, "updating status", "user_id", id, "status", status)
	identity, err := s.mutate(ctx, id, func(identity *models.Identity) error {
		if !identity.Status.CanAdminTransitionTo(status) {
			return dErrors.New(dErrors.CodeBadRequest,
				"status cannot be changed from "+string(identity.Status)+" to "+string(status))
		}
		identity.ApplyStatus(status, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementMutation("status")
	s.logger.InfoContext(ctx, "status updated successfully", "user_id", id, "status", status)
	s.emit(ctx, events.TypeUserStatusChanged, identity, "Status changed to "+string(status))
	return identity, nil
}

// UpdateLastLogin stamps the last sign-in time.
func (s *Service) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := s.mutate(ctx, id, func(identity *models.Identity) error {
		identity.ApplyLogin(s.now())
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.IncrementMutation("last_login")
	return nil
}

// Delete removes an identity permanently.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	s.logger.InfoContext(ctx, "deleting user", "user_id", id)
	var deleted *models.Identity
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		identity, err := s.store.FindByID(ctx, id)
		if err != nil {
			return translateLookupError(err, "User not found with ID: "+id.String())
		}
		if err := s.store.Delete(ctx, id); err != nil {
			return translateLookupError(err, "User not found with ID: "+id.String())
		}
		deleted = identity
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.IncrementMutation("delete")
	s.logger.InfoContext(ctx, "user deleted successfully", "user_id", id)
	s.emit(ctx, events.TypeUserDeleted, deleted, "User deleted")
	return nil
}

// Statistics counts identities in total, per role and per status. The
// counts run concurrently and are not a single consistent snapshot.
func (s *Service) Statistics(ctx context.Context) (models.Statistics, error) {
	stats := models.Statistics{
		ByRole:   make(map[models.Role]int64, len(models.Roles)),
		ByStatus: make(map[models.Status]int64, len(models.Statuses)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.Count(gctx)
		if err != nil {
			return err
		}
		mu.Lock()
		stats.Total = n
		mu.Unlock()
		return nil
	})
	for _, role := range models.Roles {
		g.Go(func() error {
			n, err := s.store.CountByRole(gctx, role)
			if err != nil {
				return err
			}
			mu.Lock()
			stats.ByRole[role] = n
			mu.Unlock()
			return nil
		})
	}
	for _, status := range models.Statuses {
		g.Go(func() error {
			n, err := s.store.CountByStatus(gctx, status)
			if err != nil {
				return err
			}
			mu.Lock()
			stats.ByStatus[status] = n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Statistics{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count users")
	}
	return stats, nil
}

// mutate loads, edits and saves one identity in a single transaction.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, apply func(*models.Identity) error) (*models.Identity, error) {
	var updated *models.Identity
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		identity, err := s.store.FindByID(ctx, id)
		if err != nil {
			return translateLookupError(err, "User not found with ID: "+id.String())
		}
		if err := apply(identity); err != nil {
			return err
		}
		if err := s.store.Update(ctx, identity); err != nil {
			return translateWriteError(err, "failed to update user")
		}
		updated = identity
		return nil
	})
	if err != nil {
		return nil, ensureCoded(err, "failed to update user")
	}
	return updated, nil
}

// emit publishes after the originating write has committed. Failures are
// logged and dropped.
func (s *Service) emit(ctx context.Context, eventType events.Type, identity *models.Identity, message string) {
	if s.publisher == nil {
		return
	}
	event := events.NewUserEvent(eventType, identity, message, s.now())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user event",
			"event_type", eventType,
			"user_id", identity.ID,
			"error", err,
		)
	}
}

func translateLookupError(err error, notFoundMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
}

// translateWriteError maps a unique index violation to a conflict naming the
// field, which covers registrations that race past the existence checks.
func translateWriteError(err error, msg string) error {
	var violation *store.UniqueViolation
	if errors.As(err, &violation) {
		return dErrors.Conflict(violation.Field, "User with this "+fieldLabel(violation.Field)+" already exists")
	}
	if errors.Is(err, store.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// ensureCoded translates errors raised outside the callback, such as a
// unique violation surfacing at commit.
func ensureCoded(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return translateWriteError(err, msg)
}

func fieldLabel(field string) string {
	switch field {
	case store.FieldMatricNumber:
		return "matric number"
	case store.FieldStaffID:
		return "staff ID"
	default:
		return field
	}
}

func wrapList(identities []*models.Identity, err error) ([]*models.Identity, error) {
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return identities, nil
}
