// Package strings provides string slice helpers.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and blanks, trimming each element.
// Order of first appearance is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}
	return result
}

// NormalizeEmail is the canonical form of an e-mail identifier: trimmed and
// lower-cased. Every comparison, cache key and stored activity identifier
// goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DedupeEmails normalizes every identifier and drops blanks and duplicates,
// so two spellings of one address collapse into a single entry.
func DedupeEmails(values []string) []string {
	normalized := make([]string, len(values))
	for i, v := range values {
		normalized[i] = NormalizeEmail(v)
	}
	return DedupeAndTrim(normalized)
}

// Without returns values minus every element equal to exclude once both are
// normalized with NormalizeEmail.
func Without(values []string, exclude string) []string {
	exclude = NormalizeEmail(exclude)
	result := make([]string, 0, len(values))
	for _, v := range values {
		if NormalizeEmail(v) == exclude {
			continue
		}
		result = append(result, v)
	}
	return result
}
