package utils

import (
	"strings"
	"unicode"
)

// slugFallback is used when slugification consumes the entire input
// (e.g. a title made of punctuation only).
const slugFallback = "item"

// Slugify derives a URL-safe identifier candidate from free text:
// lowercase, runs of non-alphanumeric characters collapsed to a single
// hyphen, leading/trailing hyphens trimmed.
func Slugify(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r) && r < 128:
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return slugFallback
	}
	return slug
}
