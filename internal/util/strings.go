// Package util provides common utility functions used across the codebase.
package util

import "strings"

// JoinOrNone joins strings with ", " or returns "(none)" for empty slices.
func JoinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// Pluralize returns singular if count is 1, otherwise plural.
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// SanitizeFilename replaces characters that aren't safe for filenames.
// A name that sanitizes to nothing usable becomes "_".
func SanitizeFilename(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '/' || c == '\\' || c == ':' || c == '*' || c == '?' || c == '"' || c == '<' || c == '>' || c == '|':
			result[i] = '-'
		case c < 0x20 || c == 0x7f:
			result[i] = '_'
		default:
			result[i] = c
		}
	}
	s := string(result)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
