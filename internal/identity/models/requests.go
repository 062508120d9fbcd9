package models

import "strings"

// RegistrationRequest is the service-level input to the registration
// pipeline. Transport layers build it after structural validation.
type RegistrationRequest struct {
	Email        string
	FirstName    string
	LastName     string
	Role         Role
	AccountType  AccountType
	PhoneNumber  *string
	Department   *string
	MatricNumber *string
	StaffID      *string
	GradYear     *int
}

// Normalize trims text fields and drops blank optional values so that a
// blank matric number or staff id counts as "not supplied".
func (r *RegistrationRequest) Normalize() {
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.PhoneNumber = trimOptional(r.PhoneNumber)
	r.Department = trimOptional(r.Department)
	r.MatricNumber = trimOptional(r.MatricNumber)
	r.StaffID = trimOptional(r.StaffID)
}

// ProfileUpdate carries a partial profile edit; nil fields are left as is.
type ProfileUpdate struct {
	FirstName   *string
	LastName    *string
	PhoneNumber *string
	Department  *string
}

// Statistics summarises identity counts per role and status.
type Statistics struct {
	Total    int64
	ByRole   map[Role]int64
	ByStatus map[Status]int64
}

// AsMap flattens the statistics into the keys reported over HTTP.
func (s Statistics) AsMap() map[string]int64 {
	return map[string]int64{
		"total_users":     s.Total,
		"admin_staff":     s.ByRole[RoleAdminStaff],
		"academic_staff":  s.ByRole[RoleAcademicStaff],
		"students":        s.ByRole[RoleStudent],
		"guests":          s.ByRole[RoleGuest],
		"active_users":    s.ByStatus[StatusActive],
		"inactive_users":  s.ByStatus[StatusInactive],
		"expired_users":   s.ByStatus[StatusExpired],
		"suspended_users": s.ByStatus[StatusSuspended],
	}
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
