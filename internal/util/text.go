package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces     = regexp.MustCompile(`\s+`)
	reNonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	stripMarks   = runes.Remove(runes.In(unicode.Mn))
	foldAccents  = transform.Chain(norm.NFKD, stripMarks)
	reFoldQuotes = regexp.MustCompile(`["“”’‘'` + "`" + `«»]`)
)

// StripAccents decomposes s with NFKD and drops combining marks.
func StripAccents(s string) string {
	out, _, err := transform.String(foldAccents, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeSpaces trims s and collapses inner whitespace runs to one space.
func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// Fold is the comparison key for free text: accents stripped, lowercase,
// quotes removed, whitespace collapsed.
func Fold(input string) string {
	s := strings.ReplaceAll(input, "\ufeff", "")
	s = StripAccents(s)
	s = strings.ToLower(s)
	s = reFoldQuotes.ReplaceAllString(s, "")
	return NormalizeSpaces(s)
}

// FoldKey is Fold with every non alphanumeric run turned into one space.
func FoldKey(input string) string {
	s := reNonAlnum.ReplaceAllString(Fold(input), " ")
	return strings.TrimSpace(s)
}

func FloatPtr(v float64) *float64 {
	return &v
}

func IntPtr(v int) *int {
	return &v
}
