package grading

import "strings"

// Normalize trims surrounding whitespace and converts CRLF line endings to LF
func Normalize(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\r\n", "\n")
}

// Equal compares expected and actual output after normalization. Internal
// whitespace and case are significant.
func Equal(expected, actual string) bool {
	return Normalize(expected) == Normalize(actual)
}
