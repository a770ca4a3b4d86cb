package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxErrorLength bounds error messages persisted on event, job and log rows.
const MaxErrorLength = 2000

// Truncate shortens s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

// TruncateError returns err's message cut to MaxErrorLength, or "" for nil.
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	return Truncate(err.Error(), MaxErrorLength)
}

// FormatAmount renders minor currency units, e.g. 1999 "eur" -> "19.99 EUR".
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, strings.ToUpper(strings.TrimSpace(currency)))
}
