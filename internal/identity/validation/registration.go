// Package validation holds the account-type rules a registration must satisfy
// before an identity is constructed.
package validation

import (
	"strings"
	"time"

	"elibrary-users/internal/identity/models"
	dErrors "elibrary-users/pkg/domain-errors"
)

// MaxGradYearLead is how many years ahead of the current year a student may
// declare their graduation.
const MaxGradYearLead = 6

const (
	MsgMatricRequired   = "Matric number is required for student accounts."
	MsgGradYearRequired = "Graduation year is required for student accounts."
	MsgGradYearPast     = "Graduation year cannot be in the past."
	MsgGradYearTooFar   = "Graduation year cannot be more than 6 years into the future"
	MsgStaffIDRequired  = "Staff ID is required for staff/admin accounts"
)

// Violation is one failed rule.
type Violation struct {
	Field   string
	Message string
}

// Violations is the full set of failed rules for a request. Empty means valid.
type Violations []Violation

// Messages returns the violation messages in evaluation order.
func (v Violations) Messages() []string {
	out := make([]string, len(v))
	for i, violation := range v {
		out[i] = violation.Message
	}
	return out
}

// FieldErrors converts the violations for transport.
func (v Violations) FieldErrors() []dErrors.FieldError {
	out := make([]dErrors.FieldError, len(v))
	for i, violation := range v {
		out[i] = dErrors.FieldError{Field: violation.Field, Message: violation.Message}
	}
	return out
}

// Err returns nil when there are no violations and a validation error
// carrying every violation otherwise.
func (v Violations) Err() error {
	if len(v) == 0 {
		return nil
	}
	return dErrors.Validation("Validation failed: "+strings.Join(v.Messages(), ", "), v.FieldErrors())
}

// Validator checks registrations against the account-type rules.
//
// The current year is read from the clock on every call, so a request
// validated either side of midnight on 31 December can get different
// results. That is accepted behavior.
type Validator struct {
	now func() time.Time
}

type Option func(*Validator)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate evaluates every rule and collects all violations.
func (v *Validator) Validate(req models.RegistrationRequest) Violations {
	var violations Violations
	currentYear := v.now().Year()

	if req.AccountType == models.AccountTypeStudent {
		if isBlank(req.MatricNumber) {
			violations = append(violations, Violation{Field: "matric_number", Message: MsgMatricRequired})
		}
		switch {
		case req.GradYear == nil:
			violations = append(violations, Violation{Field: "grad_year", Message: MsgGradYearRequired})
		case *req.GradYear < currentYear:
			violations = append(violations, Violation{Field: "grad_year", Message: MsgGradYearPast})
		case *req.GradYear > currentYear+MaxGradYearLead:
			violations = append(violations, Violation{Field: "grad_year", Message: MsgGradYearTooFar})
		}
	}

	if req.AccountType.RequiresStaffID() && isBlank(req.StaffID) {
		violations = append(violations, Violation{Field: "staff_id", Message: MsgStaffIDRequired})
	}

	return violations
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
