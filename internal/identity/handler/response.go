package handler

import (
	"strings"
	"time"

	"elibrary-users/internal/identity/models"
)

// envelope wraps every successful response body.
type envelope struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func success(message string, data any, now time.Time) envelope {
	return envelope{Success: true, Message: message, Data: data, Timestamp: now}
}

// userResponse is the public view of an identity. Lifecycle bookkeeping
// fields stay internal.
type userResponse struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Role              string     `json:"role"`
	RoleDescription   string     `json:"role_description"`
	Status            string     `json:"status"`
	StatusDescription string     `json:"status_description"`
	AccountType       string     `json:"account_type"`
	PhoneNumber       *string    `json:"phone_number,omitempty"`
	Department        *string    `json:"department,omitempty"`
	MatricNumber      *string    `json:"matric_number,omitempty"`
	StaffID           *string    `json:"staff_id,omitempty"`
	GradYear          *int       `json:"grad_year,omitempty"`
	EmailVerified     bool       `json:"email_verified"`
	IsAccountExpired  bool       `json:"is_account_expired"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
}

func toUserResponse(i *models.Identity, currentYear int) userResponse {
	return userResponse{
		ID:                i.ID.String(),
		Email:             i.Email,
		FirstName:         i.FirstName,
		LastName:          i.LastName,
		Role:              i.Role.String(),
		RoleDescription:   i.Role.Description(),
		Status:            i.Status.String(),
		StatusDescription: i.Status.Description(),
		AccountType:       i.AccountType.String(),
		PhoneNumber:       i.PhoneNumber,
		Department:        i.Department,
		MatricNumber:      i.MatricNumber,
		StaffID:           i.StaffID,
		GradYear:          i.GradYear,
		EmailVerified:     i.EmailVerified,
		IsAccountExpired:  models.IsAccountExpired(i.GradYear, currentYear),
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
		LastLoginAt:       i.LastLoginAt,
	}
}

func toUserResponses(identities []*models.Identity, currentYear int) []userResponse {
	out := make([]userResponse, 0, len(identities))
	for _, i := range identities {
		out = append(out, toUserResponse(i, currentYear))
	}
	return out
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
