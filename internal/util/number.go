package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reNumber        = regexp.MustCompile(`^[+-]?(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?|[.,]\d+)$`)
	reThousandDot   = regexp.MustCompile(`^[+-]?\d{1,3}(?:\.\d{3})+$`)
	reThousandComma = regexp.MustCompile(`^[+-]?\d{1,3}(?:,\d{3})+$`)
)

// ParseNumber coerces a cell to a number. The whole trimmed cell must be a
// number; anything else (including "22 anos") is nil. Decimal commas and
// thousand separators are accepted.
func ParseNumber(input string) *float64 {
	s := strings.TrimSpace(strings.ReplaceAll(input, "\u00A0", " "))
	if s == "" {
		return nil
	}
	if !reNumber.MatchString(s) {
		return nil
	}
	parsed, err := strconv.ParseFloat(normalizeNumericToken(s), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return nil
	}
	return &parsed
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if reThousandDot.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if reThousandComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
