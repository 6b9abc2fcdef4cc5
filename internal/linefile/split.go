package linefile

import "strings"

// Split cuts line on every occurrence of delim. There is no quoting grammar:
// a delimiter inside a value is indistinguishable from a field boundary.
// An empty line yields a single empty field.
func Split(line string, delim rune) []string {
	return strings.Split(line, string(delim))
}

// Count returns len(Split(line, delim)) without allocating.
func Count(line string, delim rune) int {
	return strings.Count(line, string(delim)) + 1
}

// Join is the inverse of Split.
func Join(fields []string, delim rune) string {
	return strings.Join(fields, string(delim))
}
