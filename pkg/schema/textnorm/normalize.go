// Package textnorm provides the canonical text normalization used for verse
// matching. Indexing and query paths must both go through Normalize so that
// stored normalized text and query text stay comparable.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	whitespaceRE  = regexp.MustCompile(`\s+`)
	punctuationRE = regexp.MustCompile(`[,:;.!?"'()\[\]{}]`)
)

// Normalize lowercases, collapses whitespace runs to single spaces, trims the
// ends, and replaces a fixed set of punctuation characters with spaces. The
// result is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, " ", " "))
	s = strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
	s = punctuationRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
