package handler

import (
	"elibrary-users/internal/identity/models"
	"elibrary-users/pkg/platform/httputil"
)

// RegisterRequest is the JSON body of POST /register.
type RegisterRequest struct {
	Email        string  `json:"email" validate:"required,email"`
	FirstName    string  `json:"first_name" validate:"required"`
	LastName     string  `json:"last_name" validate:"required"`
	Role         string  `json:"role" validate:"required"`
	AccountType  string  `json:"account_type" validate:"required"`
	PhoneNumber  *string `json:"phone_number" validate:"omitempty,numeric,min=10,max=15"`
	Department   *string `json:"department"`
	MatricNumber *string `json:"matric_number"`
	StaffID      *string `json:"staff_id"`
	GradYear     *int    `json:"grad_year"`

	role        models.Role
	accountType models.AccountType
}

// Validate normalizes the request and checks its structure. Business rules
// run later in the service.
func (r *RegisterRequest) Validate() error {
	r.Email = trim(r.Email)
	r.FirstName = trim(r.FirstName)
	r.LastName = trim(r.LastName)
	r.PhoneNumber = trimOptional(r.PhoneNumber)
	if err := httputil.ValidateStruct(r); err != nil {
		return err
	}
	role, err := models.ParseRole(r.Role)
	if err != nil {
		return err
	}
	accountType, err := models.ParseAccountType(r.AccountType)
	if err != nil {
		return err
	}
	r.role, r.accountType = role, accountType
	return nil
}

// ToModel converts a validated request into the service input.
func (r *RegisterRequest) ToModel() models.RegistrationRequest {
	req := models.RegistrationRequest{
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Role:         r.role,
		AccountType:  r.accountType,
		PhoneNumber:  r.PhoneNumber,
		Department:   r.Department,
		MatricNumber: r.MatricNumber,
		StaffID:      r.StaffID,
		GradYear:     r.GradYear,
	}
	req.Normalize()
	return req
}

// ProfileUpdateRequest is the JSON body of PUT /{id}/profile.
type ProfileUpdateRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,numeric,min=10,max=15"`
	Department  *string `json:"department"`
}

func (r *ProfileUpdateRequest) Validate() error {
	r.FirstName = trimOptional(r.FirstName)
	r.LastName = trimOptional(r.LastName)
	r.PhoneNumber = trimOptional(r.PhoneNumber)
	r.Department = trimOptional(r.Department)
	return httputil.ValidateStruct(r)
}

func (r *ProfileUpdateRequest) ToModel() models.ProfileUpdate {
	return models.ProfileUpdate{
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		PhoneNumber: r.PhoneNumber,
		Department:  r.Department,
	}
}

// RoleUpdateRequest is the JSON body of PUT /{id}/role.
type RoleUpdateRequest struct {
	NewRole string `json:"new_role" validate:"required"`

	role models.Role
}

func (r *RoleUpdateRequest) Validate() error {
	if err := httputil.ValidateStruct(r); err != nil {
		return err
	}
	role, err := models.ParseRole(r.NewRole)
	if err != nil {
		return err
	}
	r.role = role
	return nil
}
