package models

import "time"

// Lifecycle transitions driven by the scheduler. Each pair is a pure
// predicate over a snapshot row plus the mutation applied when it holds, so
// jobs can re-check rows returned by a store query before touching them.

// IsExpiryCandidate holds for active students whose graduation year is
// before currentYear.
func (i *Identity) IsExpiryCandidate(currentYear int) bool {
	return i.Status == StatusActive &&
		i.AccountType == AccountTypeStudent &&
		IsAccountExpired(i.GradYear, currentYear)
}

// ApplyExpiry moves an identity to StatusExpired.
func (i *Identity) ApplyExpiry(now time.Time) {
	i.Status = StatusExpired
	i.AccountNotExpired = false
	i.AccountNotLocked = true
	i.UpdatedAt = now
}

// IsWarningCandidate holds for active students graduating in targetYear who
// have not been warned yet.
func (i *Identity) IsWarningCandidate(targetYear int) bool {
	return i.Status == StatusActive &&
		i.AccountType == AccountTypeStudent &&
		i.GradYear != nil && *i.GradYear == targetYear &&
		i.ExpiryWarningSentAt == nil
}

// ApplyExpiryWarning stamps the warning marker. An existing stamp is kept.
func (i *Identity) ApplyExpiryWarning(now time.Time) {
	if i.ExpiryWarningSentAt != nil {
		return
	}
	t := now
	i.ExpiryWarningSentAt = &t
	i.UpdatedAt = now
}

// IsPurgeCandidate holds for expired identities in the student role whose
// last update happened before cutoff.
func (i *Identity) IsPurgeCandidate(cutoff time.Time) bool {
	return i.Role == RoleStudent &&
		i.Status == StatusExpired &&
		i.UpdatedAt.Before(cutoff)
}
