package common

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// NormalizePrice parses a Japanese price string into a decimal value and a
// unit. Full-width digits and separators are folded first; 万 and 千
// multipliers are applied. Unparseable strings (非公表, ranges with no
// leading number) return nil, and callers preserve the raw string.
func NormalizePrice(raw string) (*float64, string) {
	if raw == "" {
		return nil, ""
	}

	// Fold full-width characters to ASCII (１，０００ -> 1,000)
	s := width.Fold.String(raw)
	s = strings.TrimSpace(s)

	unit := ""
	if strings.ContainsAny(s, "円¥￥") {
		unit = "円"
	}

	// A range keeps only its lower bound
	if idx := strings.IndexAny(s, "~～〜"); idx >= 0 {
		s = s[:idx]
	}

	multiplier := 1.0
	if strings.Contains(s, "万") {
		multiplier = 10000
	} else if strings.Contains(s, "千") {
		multiplier = 1000
	}

	// Strip everything but digits and the decimal point
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return nil, unit
	}

	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return nil, unit
	}

	value *= multiplier
	return &value, unit
}

var datePatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`), ""},
	{regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`), ""},
	{regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`), ""},
}

// ParseJapaneseDate extracts the first date found in a Japanese or ISO
// formatted string. Returns nil when no date is present.
func ParseJapaneseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}

	s := width.Fold.String(raw)

	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		return &t
	}

	return nil
}

var prefectureRe = regexp.MustCompile(`(東京都|北海道|京都府|大阪府|[\x{4E00}-\x{9FFF}]{2,3}県)`)

// ExtractPrefecture finds the first prefecture name in the text, typically
// from the organization or case name. Empty when none is present.
func ExtractPrefecture(text string) string {
	return prefectureRe.FindString(text)
}

// FoldWidth converts full-width ASCII variants to their narrow forms
func FoldWidth(s string) string {
	return width.Fold.String(s)
}
