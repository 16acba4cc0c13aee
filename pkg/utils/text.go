package utils

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)
var horizontalSpaceRun = regexp.MustCompile(`[^\S\n]+`)
var nonDigits = regexp.MustCompile(`[^\d]`)

// NormalizeSpace collapses runs of whitespace into single spaces and trims the result
func NormalizeSpace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// NormalizeLines collapses whitespace within each line but keeps line breaks, dropping empty lines
func NormalizeLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(horizontalSpaceRun.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// DigitsOnly strips everything but ASCII digits ("Found 1.247 results" -> "1247")
func DigitsOnly(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}
