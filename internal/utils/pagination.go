// Package utils holds small helpers with no domain knowledge.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as an int, returning def when s is blank or invalid.
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ClampLimit parses a list "limit" query value. Blank or invalid input
// yields def; the result is kept within [1, max].
func ClampLimit(raw string, def, max int) int {
	n := AtoiDefault(raw, def)
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	return n
}
