// Package slug derives stable directory names from book titles.
//
// A slug is the identity of a book across every cache and the output tree,
// so generation must be deterministic: the same title always yields the
// same slug no matter which source supplied it.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes accented characters and drops the combining marks,
// so "Café" slugs to "cafe" rather than losing the letter entirely.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Make converts a title into a slug: lowercase, subtitle removed
// (everything after the first colon), diacritics folded, punctuation
// stripped, a leading "the" or "a" article dropped, and whitespace
// collapsed to single hyphens.
func Make(title string) string {
	return slugify(title, true)
}

// MakeKeepSubtitle is Make without the subtitle removal, for titles where
// the subtitle is the distinguishing part.
func MakeKeepSubtitle(title string) string {
	return slugify(title, false)
}

func slugify(title string, dropSubtitle bool) string {
	s := strings.ToLower(title)

	if dropSubtitle {
		if i := strings.IndexByte(s, ':'); i >= 0 {
			s = s[:i]
		}
	}

	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}

	// Keep word characters, whitespace, and hyphens; drop the rest.
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	s = b.String()

	// A bare article ("The") is a legitimate title; only strip when
	// something follows it.
	s = dropLeadingArticle(s, "the")
	s = dropLeadingArticle(s, "a")

	s = strings.Join(strings.Fields(s), "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}

func dropLeadingArticle(s, article string) string {
	rest, ok := strings.CutPrefix(s, article+" ")
	if !ok {
		return s
	}
	return strings.TrimLeft(rest, " ")
}
