// Package isbn normalizes International Standard Book Numbers so that the
// same edition always maps to the same cache key.
package isbn

import "strings"

var separators = strings.NewReplacer("-", "", " ", "")

// Normalize removes hyphens and spaces from an ISBN. Retail sources format
// the same number differently ("978-0-596-52068-7", "978 0 596 52068 7");
// cache keys and lookups always use the normalized form.
func Normalize(raw string) string {
	return separators.Replace(strings.TrimSpace(raw))
}

// Valid reports whether s has the shape of an ISBN-10 or ISBN-13 after
// normalization. It does not verify the check digit.
func Valid(s string) bool {
	s = Normalize(s)
	switch len(s) {
	case 10:
		for i, r := range s {
			if r >= '0' && r <= '9' {
				continue
			}
			if i == 9 && (r == 'X' || r == 'x') {
				continue
			}
			return false
		}
		return true
	case 13:
		for _, r := range s {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	default:
		return false
	}
}
