// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// NormalizeDomains trims, lowercases and dedupes a list of email domains,
// dropping blanks and any leading "@". Order is preserved.
//
// Example:
//
//	NormalizeDomains([]string{" @FUTO.edu.ng", "futo.edu.ng", ""})
//	// Returns: []string{"futo.edu.ng"}
func NormalizeDomains(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		domain := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(v), "@"))
		if domain == "" {
			continue
		}
		if _, ok := seen[domain]; !ok {
			seen[domain] = struct{}{}
			result = append(result, domain)
		}
	}
	return result
}
