// Package strings provides string normalization shared by catalog and intake code.
package strings

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold returns a Unicode case-folded, trimmed form of s for
// case-insensitive comparison. cases.Caser is stateful, so one is built per call.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
// An empty needle never matches.
func ContainsFold(haystack, needle string) bool {
	n := Fold(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Fold(haystack), n)
}

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	return dedupe(values, func(s string) string { return s })
}

// DedupeFold is like DedupeAndTrim but treats case variants as duplicates.
// The first spelling seen is kept.
//
//	DedupeFold([]string{"Aadhaar Card", "aadhaar card", "Income Certificate"})
//	// []string{"Aadhaar Card", "Income Certificate"}
func DedupeFold(values []string) []string {
	return dedupe(values, Fold)
}

func dedupe(values []string, key func(string) string) []string {
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
		k := key(trimmed)
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
