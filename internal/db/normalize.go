package db

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeUsername canonicalizes a username for storage and lookup:
// trimmed, diacritics folded to ASCII, lower-cased. Uniqueness is enforced
// on the normalized form, so "José" and "jose" collide.
func NormalizeUsername(s string) string {
	return strings.ToLower(transliterate(strings.TrimSpace(s)))
}

// NormalizeEmail canonicalizes an email address: trimmed and lower-cased.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// transliterate converts accented characters to their ASCII equivalents.
func transliterate(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)), // Mn: Mark, Nonspacing
		norm.NFC,
	)

	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
