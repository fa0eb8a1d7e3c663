package util

import (
	"slices"
	"strings"
)

// SafeTruncate returns at most maxLen bytes of s. It is used to log a prefix
// of codes and tokens instead of the full value. Negative maxLen yields "".
//
//	SafeTruncate("very-long-token-abc123", 8) // "very-lon"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// SplitScope splits a space-delimited scope string (RFC 6749 3.3) into its
// tokens, dropping empty entries and duplicates while keeping order.
func SplitScope(scope string) []string {
	fields := strings.Fields(scope)
	out := fields[:0]
	for _, f := range fields {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// NormalizeScope returns scope with whitespace collapsed and duplicates removed
func NormalizeScope(scope string) string {
	return strings.Join(SplitScope(scope), " ")
}

// HasScope reports whether the space-delimited scope contains want
func HasScope(scope, want string) bool {
	return slices.Contains(strings.Fields(scope), want)
}
