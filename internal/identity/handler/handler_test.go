package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"elibrary-users/internal/identity/handler/mocks"
	"elibrary-users/internal/identity/models"
	dErrors "elibrary-users/pkg/domain-errors"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
	now     time.Time
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.router = s.newRouter()
}

func (s *HandlerSuite) newRouter(opts ...Option) chi.Router {
	opts = append(opts, WithClock(func() time.Time { return s.now }))
	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, opts...)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(v))
}

func (s *HandlerSuite) identity() *models.Identity {
	matric, grad := "20201234", 2027
	return models.NewIdentity(uuid.New(), models.RegistrationRequest{
		Email:        "ada@futo.edu.ng",
		FirstName:    "Ada",
		LastName:     "Obi",
		Role:         models.RoleStudent,
		AccountType:  models.AccountTypeStudent,
		MatricNumber: &matric,
		GradYear:     &grad,
	}, s.now)
}

type userEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    userResponse `json:"data"`
}

type errorBody struct {
	Error            string               `json:"error"`
	ErrorDescription string               `json:"error_description"`
	Field            string               `json:"field"`
	Fields           []dErrors.FieldError `json:"fields"`
	AllowedDomains   []string             `json:"allowed_domains"`
}

func (s *HandlerSuite) TestRegister() {
	s.Run("valid request returns 201 with the created user", func() {
		created := s.identity()
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req models.RegistrationRequest) (*models.Identity, error) {
				s.Equal("ada@futo.edu.ng", req.Email)
				s.Equal(models.RoleStudent, req.Role)
				s.Equal(models.AccountTypeStudent, req.AccountType)
				s.Nil(req.StaffID, "blank staff id is dropped")
				s.Equal(2027, *req.GradYear)
				return created, nil
			})

		rec := s.do(http.MethodPost, "/api/users/register", map[string]any{
			"email":         " ada@futo.edu.ng ",
			"first_name":    "Ada",
			"last_name":     "Obi",
			"role":          "STUDENT",
			"account_type":  "student",
			"matric_number": "20201234",
			"staff_id":      "  ",
			"grad_year":     2027,
		})

		s.Equal(http.StatusCreated, rec.Code)
		var resp userEnvelope
		s.decode(rec, &resp)
		s.True(resp.Success)
		s.Equal("User registered successfully", resp.Message)
		s.Equal(created.ID.String(), resp.Data.ID)
		s.Equal("student", resp.Data.Role)
		s.False(resp.Data.IsAccountExpired)
	})

	s.Run("structural failures never reach the service", func() {
		rec := s.do(http.MethodPost, "/api/users/register", map[string]any{
			"email":        "not-an-email",
			"first_name":   "",
			"last_name":    "Obi",
			"role":         "student",
			"account_type": "student",
			"phone_number": "12ab",
		})

		s.Equal(http.StatusBadRequest, rec.Code)
		var body errorBody
		s.decode(rec, &body)
		s.Equal(string(dErrors.CodeValidation), body.Error)
		fields := map[string]bool{}
		for _, f := range body.Fields {
			fields[f.Field] = true
		}
		s.True(fields["email"])
		s.True(fields["first_name"])
		s.True(fields["phone_number"])
	})

	s.Run("unknown role is a bad request", func() {
		rec := s.do(http.MethodPost, "/api/users/register", map[string]any{
			"email":        "ada@futo.edu.ng",
			"first_name":   "Ada",
			"last_name":    "Obi",
			"role":         "librarian",
			"account_type": "student",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("domain rejection lists allowed domains", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.DomainRejected("Email domain not allowed", []string{"futo.edu.ng"}))

		rec := s.do(http.MethodPost, "/api/users/register", map[string]any{
			"email":        "ada@gmail.com",
			"first_name":   "Ada",
			"last_name":    "Obi",
			"role":         "academic_staff",
			"account_type": "staff",
			"staff_id":     "S-1",
		})

		s.Equal(http.StatusBadRequest, rec.Code)
		var body errorBody
		s.decode(rec, &body)
		s.Equal(string(dErrors.CodeDomainRejected), body.Error)
		s.Equal([]string{"futo.edu.ng"}, body.AllowedDomains)
	})

	s.Run("duplicate returns 409 naming the field", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Conflict("matric_number", "Matric number already registered"))

		rec := s.do(http.MethodPost, "/api/users/register", map[string]any{
			"email":         "ada@futo.edu.ng",
			"first_name":    "Ada",
			"last_name":     "Obi",
			"role":          "student",
			"account_type":  "student",
			"matric_number": "20201234",
			"grad_year":     2027,
		})

		s.Equal(http.StatusConflict, rec.Code)
		var body errorBody
		s.decode(rec, &body)
		s.Equal("matric_number", body.Field)
	})

	s.Run("malformed json", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/users/register", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestLookups() {
	s.Run("get by id", func() {
		identity := s.identity()
		s.service.EXPECT().GetByID(gomock.Any(), identity.ID).Return(identity, nil)

		rec := s.do(http.MethodGet, "/api/users/"+identity.ID.String(), nil)

		s.Equal(http.StatusOK, rec.Code)
		var resp userEnvelope
		s.decode(rec, &resp)
		s.Equal(identity.Email, resp.Data.Email)
		s.Equal(identity.Role.Description(), resp.Data.RoleDescription)
	})

	s.Run("malformed id is a bad request", func() {
		rec := s.do(http.MethodGet, "/api/users/not-a-uuid", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("missing user is 404", func() {
		id := uuid.New()
		s.service.EXPECT().GetByID(gomock.Any(), id).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "User not found with id: "+id.String()))

		rec := s.do(http.MethodGet, "/api/users/"+id.String(), nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("get by email", func() {
		identity := s.identity()
		s.service.EXPECT().GetByEmail(gomock.Any(), "ada@futo.edu.ng").Return(identity, nil)

		rec := s.do(http.MethodGet, "/api/users/email/ada@futo.edu.ng", nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("list by role parses the path value", func() {
		s.service.EXPECT().ListByRole(gomock.Any(), models.RoleAcademicStaff).
			Return([]*models.Identity{s.identity()}, nil)

		rec := s.do(http.MethodGet, "/api/users/role/ACADEMIC_STAFF", nil)

		s.Equal(http.StatusOK, rec.Code)
		var resp struct {
			Data []userResponse `json:"data"`
		}
		s.decode(rec, &resp)
		s.Len(resp.Data, 1)
	})

	s.Run("unknown status is rejected before the service", func() {
		rec := s.do(http.MethodGet, "/api/users/status/deleted", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("search requires a keyword", func() {
		rec := s.do(http.MethodGet, "/api/users/search", nil)
		s.Equal(http.StatusBadRequest, rec.Code)

		s.service.EXPECT().Search(gomock.Any(), "ada").Return(nil, nil)
		rec = s.do(http.MethodGet, "/api/users/search?keyword=ada", nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("empty list renders an empty array", func() {
		s.service.EXPECT().ListAll(gomock.Any()).Return(nil, nil)

		rec := s.do(http.MethodGet, "/api/users/", nil)

		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), `"data":[]`)
	})

	s.Run("expired students", func() {
		expired := s.identity()
		grad := 2024
		expired.GradYear = &grad
		s.service.EXPECT().ListExpiredStudents(gomock.Any()).Return([]*models.Identity{expired}, nil)

		rec := s.do(http.MethodGet, "/api/users/expired", nil)

		var resp struct {
			Data []userResponse `json:"data"`
		}
		s.decode(rec, &resp)
		s.Require().Len(resp.Data, 1)
		s.True(resp.Data[0].IsAccountExpired)
	})
}

func (s *HandlerSuite) TestMutations() {
	s.Run("update profile", func() {
		identity := s.identity()
		s.service.EXPECT().UpdateProfile(gomock.Any(), identity.ID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ uuid.UUID, update models.ProfileUpdate) (*models.Identity, error) {
				s.Require().NotNil(update.Department)
				s.Equal("Computer Science", *update.Department)
				s.Nil(update.FirstName)
				return identity, nil
			})

		rec := s.do(http.MethodPut, "/api/users/"+identity.ID.String()+"/profile", map[string]any{
			"department": "Computer Science",
		})
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("profile phone must be numeric", func() {
		rec := s.do(http.MethodPut, "/api/users/"+uuid.NewString()+"/profile", map[string]any{
			"phone_number": "080-123",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("update role", func() {
		identity := s.identity()
		s.service.EXPECT().UpdateRole(gomock.Any(), identity.ID, models.RoleGuest).Return(identity, nil)

		rec := s.do(http.MethodPut, "/api/users/"+identity.ID.String()+"/role", map[string]any{
			"new_role": "GUEST",
		})
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("update status reads the query parameter", func() {
		identity := s.identity()
		s.service.EXPECT().UpdateStatus(gomock.Any(), identity.ID, models.StatusSuspended).Return(identity, nil)

		rec := s.do(http.MethodPut, "/api/users/"+identity.ID.String()+"/status?status=SUSPENDED", nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("last login", func() {
		id := uuid.New()
		s.service.EXPECT().UpdateLastLogin(gomock.Any(), id).Return(nil)

		rec := s.do(http.MethodPut, "/api/users/"+id.String()+"/last-login", nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("delete", func() {
		id := uuid.New()
		s.service.EXPECT().Delete(gomock.Any(), id).Return(nil)

		rec := s.do(http.MethodDelete, "/api/users/"+id.String(), nil)
		s.Equal(http.StatusOK, rec.Code)
		s.Contains(rec.Body.String(), "User deleted successfully")
	})

	s.Run("uncoded service errors attach their message", func() {
		id := uuid.New()
		s.service.EXPECT().Delete(gomock.Any(), id).Return(errors.New("pq: connection refused"))

		rec := s.do(http.MethodDelete, "/api/users/"+id.String(), nil)

		s.Equal(http.StatusInternalServerError, rec.Code)
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
		s.Equal(string(dErrors.CodeInternal), body.Error)
		s.Equal("An unexpected error occurred: failed to delete user: pq: connection refused", body.ErrorDescription)
	})
}

func (s *HandlerSuite) TestStatistics() {
	s.service.EXPECT().Statistics(gomock.Any()).Return(models.Statistics{
		Total:    2,
		ByRole:   map[models.Role]int64{models.RoleStudent: 2},
		ByStatus: map[models.Status]int64{models.StatusActive: 1, models.StatusExpired: 1},
	}, nil)

	rec := s.do(http.MethodGet, "/api/users/statistics", nil)

	s.Equal(http.StatusOK, rec.Code)
	var resp struct {
		Data map[string]int64 `json:"data"`
	}
	s.decode(rec, &resp)
	s.Equal(int64(2), resp.Data["total_users"])
	s.Equal(int64(2), resp.Data["students"])
	s.Equal(int64(1), resp.Data["expired_users"])
	s.Equal(int64(0), resp.Data["guests"])
}

func (s *HandlerSuite) TestHealth() {
	s.Run("no checks", func() {
		rec := s.do(http.MethodGet, "/api/users/health", nil)

		s.Equal(http.StatusOK, rec.Code)
		var resp struct {
			Data map[string]any `json:"data"`
		}
		s.decode(rec, &resp)
		s.Equal(ServiceName, resp.Data["service"])
		s.Equal("UP", resp.Data["status"])
		s.Equal("2026-03-14T10:00:00Z", resp.Data["timestamp"])
	})

	s.Run("a failing dependency degrades the response", func() {
		s.router = s.newRouter(
			WithHealthCheck("database", func(context.Context) error { return nil }),
			WithHealthCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") }),
		)

		rec := s.do(http.MethodGet, "/api/users/health", nil)

		s.Equal(http.StatusServiceUnavailable, rec.Code)
		var resp struct {
			Data struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			} `json:"data"`
		}
		s.decode(rec, &resp)
		s.Equal("DEGRADED", resp.Data.Status)
		s.Equal("UP", resp.Data.Checks["database"])
		s.Equal("DOWN", resp.Data.Checks["redis"])
	})
}
