package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	spaceRun      = regexp.MustCompile(`\s+`)
	unsafeName    = regexp.MustCompile(`[^\p{Hangul}a-zA-Z0-9_()<>, ]`)
	trailingDigit = regexp.MustCompile(`(.+?)\d+$`)
)

// CollapseSpace replaces every run of whitespace with a single space and
// trims the ends.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// SanitizeName makes a title safe to use as a directory or file name.
// Brackets are dropped outright, anything outside the allowed set is
// removed, and leftover space runs collapse.
func SanitizeName(s string) string {
	s = strings.ReplaceAll(s, "[", "")
	s = strings.ReplaceAll(s, "]", "")
	s = unsafeName.ReplaceAllString(s, "")
	return CollapseSpace(s)
}

// StripTitleSuffix removes the badge text a lecture button carries after
// its title: anything past a colon, a trailing run of digits, and the
// mission / attachment labels the button renders inline.
func StripTitleSuffix(s string) string {
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	s = trailingDigit.ReplaceAllString(s, "$1")
	for _, suffix := range []string{"미션첨부파일", "첨부파일", "미션"} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSpace(s)
}

// AttachSerial appends " 1", " 2", ... to runs of adjacent equal titles so
// each becomes unique. Titles with no adjacent duplicate pass through
// untouched.
func AttachSerial(titles []string) []string {
	out := make([]string, len(titles))
	serial := 0
	for i, t := range titles {
		switch {
		case i > 0 && titles[i-1] == t:
			serial++
		case i+1 < len(titles) && titles[i+1] == t:
			serial = 1
		default:
			serial = 0
		}
		if serial > 0 {
			out[i] = t + " " + strconv.Itoa(serial)
		} else {
			out[i] = t
		}
	}
	return out
}
