package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the aggregate root for a library user account.
//
// Invariants:
//   - Email is unique across identities regardless of case
//   - MatricNumber and StaffID are unique when present
//   - Registration creates identities in StatusActive
//   - StatusExpired is only reached through ApplyExpiry
//   - ExpiryWarningSentAt, once set, is never cleared by lifecycle jobs
type Identity struct {
	ID                  uuid.UUID   `json:"id"`
	Email               string      `json:"email"`
	FirstName           string      `json:"first_name"`
	LastName            string      `json:"last_name"`
	Role                Role        `json:"role"`
	Status              Status      `json:"status"`
	AccountType         AccountType `json:"account_type"`
	PhoneNumber         *string     `json:"phone_number,omitempty"`
	Department          *string     `json:"department,omitempty"`
	MatricNumber        *string     `json:"matric_number,omitempty"`
	StaffID             *string     `json:"staff_id,omitempty"`
	GradYear            *int        `json:"grad_year,omitempty"`
	EmailVerified       bool        `json:"email_verified"`
	AccountNotExpired   bool        `json:"-"`
	AccountNotLocked    bool        `json:"-"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
	LastLoginAt         *time.Time  `json:"last_login_at,omitempty"`
	ExpiryWarningSentAt *time.Time  `json:"-"`
}

// NewIdentity builds an identity from an accepted registration. Status and
// the verification/expiry flags are forced; everything else is copied.
func NewIdentity(id uuid.UUID, req RegistrationRequest, now time.Time) *Identity {
	return &Identity{
		ID:                id,
		Email:             req.Email,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Role:              req.Role,
		AccountType:       req.AccountType,
		PhoneNumber:       req.PhoneNumber,
		Department:        req.Department,
		MatricNumber:      req.MatricNumber,
		StaffID:           req.StaffID,
		GradYear:          req.GradYear,
		Status:            StatusActive,
		EmailVerified:     false,
		AccountNotExpired: true,
		AccountNotLocked:  true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// FullName joins first and last name for display and notifications.
func (i *Identity) FullName() string {
	if i.LastName == "" {
		return i.FirstName
	}
	return i.FirstName + " " + i.LastName
}

// Clone returns a deep copy so stores never share pointers with callers.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.PhoneNumber = cloneString(i.PhoneNumber)
	c.Department = cloneString(i.Department)
	c.MatricNumber = cloneString(i.MatricNumber)
	c.StaffID = cloneString(i.StaffID)
	if i.GradYear != nil {
		y := *i.GradYear
		c.GradYear = &y
	}
	c.LastLoginAt = cloneTime(i.LastLoginAt)
	c.ExpiryWarningSentAt = cloneTime(i.ExpiryWarningSentAt)
	return &c
}

// ApplyProfile overwrites only the fields the update supplies.
func (i *Identity) ApplyProfile(update ProfileUpdate, now time.Time) {
	if update.FirstName != nil {
		i.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		i.LastName = *update.LastName
	}
	if update.PhoneNumber != nil {
		i.PhoneNumber = cloneString(update.PhoneNumber)
	}
	if update.Department != nil {
		i.Department = cloneString(update.Department)
	}
	i.UpdatedAt = now
}

// ApplyRole replaces the role. Account-type rules are not re-checked.
func (i *Identity) ApplyRole(role Role, now time.Time) {
	i.Role = role
	i.UpdatedAt = now
}

// ApplyStatus replaces the status after an administrative edit.
// Call Status.CanAdminTransitionTo first.
func (i *Identity) ApplyStatus(status Status, now time.Time) {
	i.Status = status
	i.UpdatedAt = now
}

// ApplyLogin records a successful sign-in.
func (i *Identity) ApplyLogin(now time.Time) {
	t := now
	i.LastLoginAt = &t
	i.UpdatedAt = now
}

// IsAccountExpired reports whether a graduation year lies before currentYear.
// Identities without a graduation year never expire.
func IsAccountExpired(gradYear *int, currentYear int) bool {
	if gradYear == nil {
		return false
	}
	return *gradYear < currentYear
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
