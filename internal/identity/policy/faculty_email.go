// Package policy decides which email addresses may register.
package policy

import (
	"strings"

	pstrings "elibrary-users/pkg/platform/strings"
)

// FacultyEmailPolicy admits addresses whose domain is on the faculty
// allow-list. With enforcement disabled every address is admitted.
type FacultyEmailPolicy struct {
	enabled bool
	domains []string
}

// NewFacultyEmailPolicy normalizes the allow-list to trimmed, lower-cased,
// de-duplicated domains.
func NewFacultyEmailPolicy(enabled bool, allowedDomains []string) *FacultyEmailPolicy {
	return &FacultyEmailPolicy{
		enabled: enabled,
		domains: pstrings.NormalizeDomains(allowedDomains),
	}
}

// IsAllowed reports whether email may register.
func (p *FacultyEmailPolicy) IsAllowed(email string) bool {
	if !p.enabled {
		return true
	}
	domain, ok := DomainOf(email)
	if !ok {
		return false
	}
	for _, allowed := range p.domains {
		if strings.EqualFold(domain, allowed) {
			return true
		}
	}
	return false
}

// AllowedDomains returns a copy of the normalized allow-list.
func (p *FacultyEmailPolicy) AllowedDomains() []string {
	out := make([]string, len(p.domains))
	copy(out, p.domains)
	return out
}

// Enabled reports whether the allow-list is enforced.
func (p *FacultyEmailPolicy) Enabled() bool {
	return p.enabled
}

// DomainOf returns everything after the first '@'. Blank input or input
// without '@' yields false.
func DomainOf(email string) (string, bool) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", false
	}
	_, domain, found := strings.Cut(email, "@")
	if !found {
		return "", false
	}
	return domain, true
}
