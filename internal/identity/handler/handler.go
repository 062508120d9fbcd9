package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"elibrary-users/internal/identity/models"
	"elibrary-users/internal/platform/metrics"
	"elibrary-users/internal/platform/middleware"
	dErrors "elibrary-users/pkg/domain-errors"
	"elibrary-users/pkg/platform/httputil"
	"elibrary-users/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// ServiceName is reported by the health endpoint.
const ServiceName = "user-service"

// Service defines the identity operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, req models.RegistrationRequest) (*models.Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
	ListAll(ctx context.Context) ([]*models.Identity, error)
	ListByRole(ctx context.Context, role models.Role) ([]*models.Identity, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Identity, error)
	ListByDepartment(ctx context.Context, department string) ([]*models.Identity, error)
	Search(ctx context.Context, keyword string) ([]*models.Identity, error)
	ListExpiredStudents(ctx context.Context) ([]*models.Identity, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.Identity, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) (*models.Identity, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status) (*models.Identity, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	Statistics(ctx context.Context) (models.Statistics, error)
}

// HealthCheck probes one dependency for the health endpoint.
type HealthCheck func(ctx context.Context) error

// Handler serves the /api/users routes.
type Handler struct {
	logger  *slog.Logger
	users   Service
	metrics *metrics.Metrics
	checks  map[string]HealthCheck
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Handler)

// WithHealthCheck adds a named dependency probe to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		h.checks[name] = check
	}
}

// WithRequestTimeout bounds each request. Defaults to 30s.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithClock overrides the request-scoped time used for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// New creates a new identity Handler.
func New(users Service, logger *slog.Logger, metrics *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		logger:  logger,
		users:   users,
		metrics: metrics,
		checks:  make(map[string]HealthCheck),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the identity routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	usersRouter := chi.NewRouter()
	usersRouter.Use(middleware.Recovery(h.logger, h.metrics))
	usersRouter.Use(middleware.RequestID)
	usersRouter.Use(middleware.RequestTime)
	usersRouter.Use(middleware.ClientMetadata)
	usersRouter.Use(middleware.Logger(h.logger))
	usersRouter.Use(middleware.Timeout(h.timeout))
	usersRouter.Use(middleware.ContentTypeJSON)
	usersRouter.Use(middleware.LatencyMiddleware(h.metrics))

	usersRouter.Post("/register", h.handleRegister)
	usersRouter.Get("/", h.handleListAll)
	usersRouter.Get("/health", h.handleHealth)
	usersRouter.Get("/statistics", h.handleStatistics)
	usersRouter.Get("/expired", h.handleListExpired)
	usersRouter.Get("/search", h.handleSearch)
	usersRouter.Get("/email/{email}", h.handleGetByEmail)
	usersRouter.Get("/role/{role}", h.handleListByRole)
	usersRouter.Get("/status/{status}", h.handleListByStatus)
	usersRouter.Get("/department/{department}", h.handleListByDepartment)
	usersRouter.Get("/{id}", h.handleGetByID)
	usersRouter.Put("/{id}/profile", h.handleUpdateProfile)
	usersRouter.Put("/{id}/role", h.handleUpdateRole)
	usersRouter.Put("/{id}/status", h.handleUpdateStatus)
	usersRouter.Put("/{id}/last-login", h.handleUpdateLastLogin)
	usersRouter.Delete("/{id}", h.handleDelete)

	r.Mount("/api/users", usersRouter)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	identity, err := h.users.Register(ctx, req.ToModel())
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "failed to register user", err)
		return
	}

	h.logger.InfoContext(ctx, "user registered",
		"request_id", requestID,
		"user_id", identity.ID,
	)
	h.writeData(w, r, http.StatusCreated, "User registered successfully", h.user(r, identity))
}

func (h *Handler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.pathID(w, r, requestID)
	if !ok {
		return
	}
	identity, err := h.users.GetByID(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "failed to get user", err)
		return
	}
	h.writeData(w, r, http.StatusOK, "User retrieved successfully", h.user(r, identity))
}

func (h *Handler) handleGetByEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	identity, err := h.users.GetByEmail(ctx, chi.URLParam(r, "email"))
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "failed to get user by email", err)
		return
	}
	h.writeData(w, r, http.StatusOK, "User retrieved successfully", h.user(r, identity))
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	identities, err := h.users.ListAll(r.Context())
	h.writeList(w, r, "Users retrieved successfully", identities, err)
}

func (h *Handler) handleListByRole(w http.ResponseWriter, r *http.Request) {
	role, err := models.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		h.writeList(w, r, "", nil, err)
		return
	}
	identities, err := h.users.ListByRole(r.Context(), role)
	h.writeList(w, r, "Users retrieved successfully", identities, err)
}

func (h *Handler) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := models.ParseStatus(chi.URLParam(r, "status"))
	if err != nil {
		h.writeList(w, r, "", nil, err)
		return
	}
	identities, err := h.users.ListByStatus(r.Context(), status)
	h.writeList(w, r, "Users retrieved successfully", identities, err)
}

func (h *Handler) handleListByDepartment(w http.ResponseWriter, r *http.Request) {
	identities, err := h.users.ListByDepartment(r.Context(), chi.URLParam(r, "department"))
	h.writeList(w, r, "Users retrieved successfully", identities, err)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	keyword := trim(r.URL.Query().Get("keyword"))
	if keyword == "" {
		h.writeList(w, r, "", nil, dErrors.New(dErrors.CodeBadRequest, "keyword is required"))
		return
	}
	identities, err := h.users.Search(r.Context(), keyword)
	h.writeList(w, r, "Search completed successfully", identities, err)
}

func (h *Handler) handleListExpired(w http.ResponseWriter, r *http.Request) {
	identities, err := h.users.ListExpiredStudents(r.Context())
	h.writeList(w, r, "Expired student accounts retrieved successfully", identities, err)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.pathID(w, r, requestID)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ProfileUpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	identity, err := h.users.UpdateProfile(ctx, id, req.ToModel())
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "failed to update profile", err)
		return
	}
	h.writeData(w, r, http.StatusOK, "Profile updated successfully", h.user(r, identity))
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.pathID(w, r, requestID)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RoleUpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	identity, err := h.users.UpdateRole(ctx, id, req.role)
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "failed to update role", err)
		return
	}
	h.writeData(w, r, http.StatusOK, "User role updated successfully", h.user(r, identity))
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.pathID(w, r, requestID)
	if !ok {
		return
	}
	status, err := models.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "invalid status", err)
		return
	}
	identity, err := h.users.UpdateStatus(ctx, id, status)
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "failed to update status", err)
		return
	}
	h.writeData(w, r, http.StatusOK, "User status updated successfully", h.user(r, identity))
}

func (h *Handler) handleUpdateLastLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.pathID(w, r, requestID)
	if !ok {
		return
	}
	if err := h.users.UpdateLastLogin(ctx, id); err != nil {
		h.writeServiceError(ctx, w, requestID, "failed to update last login", err)
		return
	}
	h.writeData(w, r, http.StatusOK, "Last login updated successfully", nil)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	id, ok := h.pathID(w, r, requestID)
	if !ok {
		return
	}
	if err := h.users.Delete(ctx, id); err != nil {
		h.writeServiceError(ctx, w, requestID, "failed to delete user", err)
		return
	}
	h.logger.InfoContext(ctx, "user deleted",
		"request_id", requestID,
		"user_id", id,
	)
	h.writeData(w, r, http.StatusOK, "User deleted successfully", nil)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	stats, err := h.users.Statistics(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, requestID, "failed to compute statistics", err)
		return
	}
	h.writeData(w, r, http.StatusOK, "User statistics retrieved successfully", stats.AsMap())
}

// handleHealth reports liveness plus the result of every registered
// dependency probe. Any failing probe turns the response into a 503.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	results := make(map[string]string, len(h.checks))
	statuses := make([]string, len(h.checks))
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		check := h.checks[name]
		g.Go(func() error {
			statuses[i] = "UP"
			if err := check(gctx); err != nil {
				statuses[i] = "DOWN"
				h.logger.WarnContext(ctx, "health check failed",
					"check", name,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	overall, code := "UP", http.StatusOK
	for i, name := range names {
		results[name] = statuses[i]
		if statuses[i] != "UP" {
			overall, code = "DEGRADED", http.StatusServiceUnavailable
		}
	}

	body := map[string]any{
		"service":   ServiceName,
		"status":    overall,
		"timestamp": h.clock(ctx).UTC().Format(time.RFC3339),
	}
	if len(results) > 0 {
		body["checks"] = results
	}
	httputil.WriteJSON(w, code, envelope{
		Success:   code == http.StatusOK,
		Message:   "User Service is running",
		Data:      body,
		Timestamp: h.clock(ctx),
	})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid user id",
			"request_id", requestID,
			"user_id", raw,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id: "+raw))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, message string, identities []*models.Identity, err error) {
	if err != nil {
		h.writeServiceError(r.Context(), w, middleware.GetRequestID(r.Context()), "failed to list users", err)
		return
	}
	h.writeData(w, r, http.StatusOK, message, toUserResponses(identities, h.clock(r.Context()).Year()))
}

func (h *Handler) writeData(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	httputil.WriteJSON(w, status, success(message, data, h.clock(r.Context())))
}

func (h *Handler) user(r *http.Request, identity *models.Identity) userResponse {
	return toUserResponse(identity, h.clock(r.Context()).Year())
}

// clock prefers an injected clock, then the request-scoped time.
func (h *Handler) clock(ctx context.Context) time.Time {
	if h.now != nil {
		return h.now()
	}
	return requestcontext.Now(ctx)
}

// writeServiceError logs client errors at warn and everything else at error,
// then writes the error envelope. Uncoded errors render as a 500 carrying
// msg and the underlying error text.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, requestID, msg string, err error) {
	if de, ok := dErrors.As(err); ok && de.Code != dErrors.CodeInternal {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestID,
		"error", err,
	)
	httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, msg))
}
