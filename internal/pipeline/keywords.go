package pipeline

import (
	"regexp"
	"strings"
)

// maxShortKeywords bounds the keywords kept for naming and display.
const maxShortKeywords = 3

// numberPrefix matches a leading list number such as "1. " or "12.".
var numberPrefix = regexp.MustCompile(`^\d+\.\s*`)

// NormalizeKeywords splits raw model keyword output into clean tokens. It
// splits on commas when any comma is present and on whitespace otherwise,
// trims each token, strips a leading "<digits>. " list marker and drops
// empty tokens. Normalising an already clean, comma-joined list returns the
// same list.
func NormalizeKeywords(raw string) []string {
	var parts []string
	if strings.Contains(raw, ",") {
		parts = strings.Split(raw, ",")
	} else {
		parts = strings.Fields(raw)
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimSpace(numberPrefix.ReplaceAllString(p, ""))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ShortKeywords returns at most the first three keywords.
func ShortKeywords(keywords []string) []string {
	n := min(len(keywords), maxShortKeywords)
	out := make([]string, n)
	copy(out, keywords[:n])
	return out
}
