package tui

import "strings"

// Mask keeps the first half of s and stars out the rest.
func Mask(s string) string {
	l := len(s)
	if l <= 1 {
		return strings.Repeat("*", l)
	}
	h := l / 2
	return s[:h] + strings.Repeat("*", l-h)
}
