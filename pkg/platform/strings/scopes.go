// Package strings provides string helpers for credential claims.
package strings

import (
	"strings"
)

// NormalizeScopes lowercases, trims and deduplicates scope names, preserving first-seen order.
// Empty entries are dropped. A nil or empty input yields an empty, non-nil slice.
//
//	NormalizeScopes([]string{" Points:Read ", "points:read", "", "rewards:write"})
//	// []string{"points:read", "rewards:write"}
func NormalizeScopes(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		s := strings.ToLower(strings.TrimSpace(v))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		result = append(result, s)
	}
	return result
}

// SplitScopes parses a space-delimited scope claim ("a b c") into normalized scopes.
// Commas are accepted as separators for API key records entered by operators.
func SplitScopes(claim string) []string {
	fields := strings.FieldsFunc(claim, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
	return NormalizeScopes(fields)
}
