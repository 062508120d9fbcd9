package models

import (
	"strings"

	dErrors "elibrary-users/pkg/domain-errors"
)

// Role is the library permission tier of an identity.
type Role string

const (
	RoleAdminStaff    Role = "admin_staff"
	RoleAcademicStaff Role = "academic_staff"
	RoleStudent       Role = "student"
	RoleGuest         Role = "guest"
)

// Roles lists every role in reporting order.
var Roles = []Role{RoleAdminStaff, RoleAcademicStaff, RoleStudent, RoleGuest}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdminStaff, RoleAcademicStaff, RoleStudent, RoleGuest:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

func (r Role) Description() string {
	switch r {
	case RoleAdminStaff:
		return "Admin Staff - Full system access"
	case RoleAcademicStaff:
		return "Academic Staff - Upload, access and manage academic materials"
	case RoleStudent:
		return "Student - Upload projects and access materials"
	case RoleGuest:
		return "Guest - Read-only access to public materials"
	}
	return ""
}

// ParseRole accepts the canonical value case-insensitively, with either
// underscores or hyphens.
func ParseRole(s string) (Role, error) {
	r := Role(normalizeEnum(s))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid role: "+s)
	}
	return r, nil
}

// Status is the lifecycle state of an identity.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusExpired   Status = "expired"
	StatusSuspended Status = "suspended"
)

// Statuses lists every status in reporting order.
var Statuses = []Status{StatusActive, StatusInactive, StatusExpired, StatusSuspended}

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusExpired, StatusSuspended:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

func (s Status) Description() string {
	switch s {
	case StatusActive:
		return "Account is active and can access the system"
	case StatusInactive:
		return "Account is temporarily inactive"
	case StatusExpired:
		return "Account has expired"
	case StatusSuspended:
		return "Account is suspended by admin"
	}
	return ""
}

// CanAdminTransitionTo reports whether an administrative status edit may move
// an identity from s to target. Expiry is owned by the lifecycle scheduler, so
// no administrative edit may set it.
func (s Status) CanAdminTransitionTo(target Status) bool {
	switch target {
	case StatusActive, StatusInactive, StatusSuspended:
		return s.IsValid()
	case StatusExpired:
		return false
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(normalizeEnum(s))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid status: "+s)
	}
	return st, nil
}

// AccountType decides which optional attributes are mandatory at registration.
type AccountType string

const (
	AccountTypeStudent AccountType = "student"
	AccountTypeStaff   AccountType = "staff"
	AccountTypeAdmin   AccountType = "admin"
)

func (a AccountType) IsValid() bool {
	switch a {
	case AccountTypeStudent, AccountTypeStaff, AccountTypeAdmin:
		return true
	}
	return false
}

func (a AccountType) String() string { return string(a) }

// RequiresStaffID reports whether registration needs a staff identifier.
func (a AccountType) RequiresStaffID() bool {
	return a == AccountTypeStaff || a == AccountTypeAdmin
}

func ParseAccountType(s string) (AccountType, error) {
	a := AccountType(normalizeEnum(s))
	if !a.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid account type: "+s)
	}
	return a, nil
}

func normalizeEnum(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}
