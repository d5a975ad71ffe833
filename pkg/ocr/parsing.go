package ocr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// groupedNumberRE accepts "1,610" / "1.610" / "1 610" / "1610".
var groupedNumberRE = regexp.MustCompile(`^\d{1,4}(?:[.,\s]\d{3})*$`)

var slipReplacer = strings.NewReplacer(
	"l", "1",
	"I", "1",
	"İ", "1",
	"í", "1",
	"|", "1",
	"O", "0",
	"o", "0",
	"º", "0",
)

// normalizeDigits fixes the character slips tesseract makes on this UI font
// (l/I read for 1, O/o for 0) while keeping grouping punctuation.
func normalizeDigits(s string) string {
	return slipReplacer.Replace(strings.TrimSpace(s))
}

// looksLikeCount reports whether a token is a plausible counter value,
// including thousand-grouped forms.
func looksLikeCount(s string) bool {
	cleaned := strings.TrimRight(normalizeDigits(s), ".")
	if cleaned == "" {
		return false
	}
	return groupedNumberRE.MatchString(cleaned) || onlyDigits(cleaned) == cleaned
}

// ParseCount normalizes an OCR token into a non-negative integer counter.
// "1,610" and "1 610" both parse to 1610.
func ParseCount(raw string) (int, error) {
	digits := onlyDigits(normalizeDigits(raw))
	if digits == "" {
		return 0, fmt.Errorf("no digits in %q", raw)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", digits, err)
	}
	if n < 0 {
		n = -n
	}
	return n, nil
}

// onlyDigits extracts decimal digits from a string.
func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// snippet returns a shortened version of text for logging.
func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// normalizeText collapses whitespace and replaces newlines/tabs.
func normalizeText(t string) string {
	t = strings.ReplaceAll(t, "\n", " ")
	t = strings.ReplaceAll(t, "\t", " ")
	return strings.Join(strings.Fields(t), " ")
}
