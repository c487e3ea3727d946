package utils

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_.-]`)

// Slugify turns a series title into a directory name: spaces become
// underscores, accents are dropped and anything outside letters, digits,
// "_", "." and "-" is removed.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, err := transform.String(t, name)
	if err != nil {
		result = name
	}

	result = strings.ReplaceAll(strings.TrimSpace(result), " ", "_")
	return unsafeChars.ReplaceAllString(result, "")
}

// SanitizeFilename replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	// Trim spaces and dots from ends
	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")
	return result
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
