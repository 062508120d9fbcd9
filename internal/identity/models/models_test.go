package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "elibrary-users/pkg/domain-errors"
)

func ptr[T any](v T) *T { return &v }

func newStudent(gradYear int) *Identity {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return NewIdentity(uuid.New(), RegistrationRequest{
		Email:        "ada@futo.edu.ng",
		FirstName:    "Ada",
		LastName:     "Obi",
		Role:         RoleStudent,
		AccountType:  AccountTypeStudent,
		MatricNumber: ptr("M100"),
		GradYear:     ptr(gradYear),
	}, now)
}

func TestNewIdentityForcesLifecycleFlags(t *testing.T) {
	identity := newStudent(2027)

	assert.Equal(t, StatusActive, identity.Status)
	assert.False(t, identity.EmailVerified)
	assert.True(t, identity.AccountNotExpired)
	assert.True(t, identity.AccountNotLocked)
	assert.Nil(t, identity.ExpiryWarningSentAt)
	assert.Equal(t, identity.CreatedAt, identity.UpdatedAt)
}

func TestParseEnums(t *testing.T) {
	t.Run("roles accept legacy spelling", func(t *testing.T) {
		r, err := ParseRole("ACADEMIC_STAFF")
		require.NoError(t, err)
		assert.Equal(t, RoleAcademicStaff, r)

		r, err = ParseRole("admin-staff")
		require.NoError(t, err)
		assert.Equal(t, RoleAdminStaff, r)
	})

	t.Run("unknown values are bad requests", func(t *testing.T) {
		_, err := ParseRole("librarian")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
		_, err = ParseStatus("deleted")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
		_, err = ParseAccountType("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("every enum value has a description", func(t *testing.T) {
		for _, r := range Roles {
			assert.NotEmpty(t, r.Description(), r)
		}
		for _, s := range Statuses {
			assert.NotEmpty(t, s.Description(), s)
		}
	})
}

func TestAdminStatusTransitions(t *testing.T) {
	for _, from := range Statuses {
		assert.False(t, from.CanAdminTransitionTo(StatusExpired), "%s -> expired must be scheduler-only", from)
		assert.True(t, from.CanAdminTransitionTo(StatusActive), "%s -> active", from)
		assert.True(t, from.CanAdminTransitionTo(StatusSuspended), "%s -> suspended", from)
		assert.True(t, from.CanAdminTransitionTo(StatusInactive), "%s -> inactive", from)
	}
	assert.False(t, Status("bogus").CanAdminTransitionTo(StatusActive))
}

func TestLifecyclePredicates(t *testing.T) {
	const currentYear = 2026

	t.Run("expiry selects active students past graduation", func(t *testing.T) {
		assert.True(t, newStudent(2025).IsExpiryCandidate(currentYear))
		assert.False(t, newStudent(2026).IsExpiryCandidate(currentYear))

		suspended := newStudent(2025)
		suspended.Status = StatusSuspended
		assert.False(t, suspended.IsExpiryCandidate(currentYear))

		staff := newStudent(2020)
		staff.AccountType = AccountTypeStaff
		assert.False(t, staff.IsExpiryCandidate(currentYear))
	})

	t.Run("expiry sets flags", func(t *testing.T) {
		identity := newStudent(2025)
		now := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)
		identity.ApplyExpiry(now)

		assert.Equal(t, StatusExpired, identity.Status)
		assert.False(t, identity.AccountNotExpired)
		assert.True(t, identity.AccountNotLocked)
		assert.Equal(t, now, identity.UpdatedAt)
		assert.False(t, identity.IsExpiryCandidate(currentYear))
	})

	t.Run("warning is set once", func(t *testing.T) {
		identity := newStudent(2027)
		require.True(t, identity.IsWarningCandidate(2027))

		first := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
		identity.ApplyExpiryWarning(first)
		assert.False(t, identity.IsWarningCandidate(2027))

		identity.ApplyExpiryWarning(first.Add(7 * 24 * time.Hour))
		assert.Equal(t, first, *identity.ExpiryWarningSentAt)
	})

	t.Run("purge requires student role and expired status before cutoff", func(t *testing.T) {
		identity := newStudent(2024)
		identity.ApplyExpiry(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
		cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		assert.True(t, identity.IsPurgeCandidate(cutoff))

		identity.Role = RoleGuest
		assert.False(t, identity.IsPurgeCandidate(cutoff))
	})
}

func TestApplyProfileOnlyTouchesSuppliedFields(t *testing.T) {
	identity := newStudent(2027)
	identity.Department = ptr("Computer Science")
	now := identity.UpdatedAt.Add(time.Hour)

	identity.ApplyProfile(ProfileUpdate{FirstName: ptr("Adaeze")}, now)

	assert.Equal(t, "Adaeze", identity.FirstName)
	assert.Equal(t, "Obi", identity.LastName)
	assert.Equal(t, "Computer Science", *identity.Department)
	assert.Equal(t, now, identity.UpdatedAt)
}

func TestCloneIsDeep(t *testing.T) {
	identity := newStudent(2027)
	clone := identity.Clone()
	*clone.MatricNumber = "changed"
	*clone.GradYear = 1999

	assert.Equal(t, "M100", *identity.MatricNumber)
	assert.Equal(t, 2027, *identity.GradYear)
}

func TestRegistrationNormalizeDropsBlankOptionals(t *testing.T) {
	req := RegistrationRequest{
		Email:        "  ada@futo.edu.ng ",
		MatricNumber: ptr("   "),
		StaffID:      ptr(" S1 "),
	}
	req.Normalize()

	assert.Equal(t, "ada@futo.edu.ng", req.Email)
	assert.Nil(t, req.MatricNumber)
	require.NotNil(t, req.StaffID)
	assert.Equal(t, "S1", *req.StaffID)
}

func TestStatisticsAsMap(t *testing.T) {
	stats := Statistics{
		Total:    3,
		ByRole:   map[Role]int64{RoleStudent: 2, RoleGuest: 1},
		ByStatus: map[Status]int64{StatusActive: 3},
	}
	m := stats.AsMap()
	assert.Equal(t, int64(3), m["total_users"])
	assert.Equal(t, int64(2), m["students"])
	assert.Equal(t, int64(0), m["admin_staff"])
	assert.Equal(t, int64(3), m["active_users"])
	assert.Len(t, m, 9)
}
