// Package store persists identities.
//
// Stores report infrastructure facts only: ErrNotFound for missing rows and
// *UniqueViolation for email, matric number or staff id collisions. Services
// translate both into domain errors.
package store

import (
	"sort"
	"strings"

	"elibrary-users/internal/identity/models"
	"elibrary-users/pkg/platform/sentinel"
)

// ErrNotFound is returned when no identity matches the lookup.
var ErrNotFound = sentinel.ErrNotFound

// Unique attributes an identity can collide on.
const (
	FieldEmail        = "email"
	FieldMatricNumber = "matric_number"
	FieldStaffID      = "staff_id"
)

// UniqueViolation reports that a write collided with an existing identity.
// It unwraps to sentinel.ErrAlreadyUsed.
type UniqueViolation struct {
	Field string
}

func (e *UniqueViolation) Error() string {
	return e.Field + " already used"
}

func (e *UniqueViolation) Unwrap() error {
	return sentinel.ErrAlreadyUsed
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// sortIdentities orders results the way the Postgres store does: oldest
// first, ties broken by id.
func sortIdentities(identities []*models.Identity) {
	sort.Slice(identities, func(a, b int) bool {
		if !identities[a].CreatedAt.Equal(identities[b].CreatedAt) {
			return identities[a].CreatedAt.Before(identities[b].CreatedAt)
		}
		return identities[a].ID.String() < identities[b].ID.String()
	})
}
