package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^A-Z0-9]`)
	classPattern    = regexp.MustCompile(`^([A-Z]+)([0-9].*)$`)
)

// Class canonicalizes a raw class name: strip everything that is not a
// letter or digit, uppercase, then split a leading alphabetic prefix from the
// numeric-led rest and rejoin with a single space ("ss1q" -> "SS 1Q"). Inputs
// that do not fit the prefix+digits shape fall back to the raw string
// uppercased. Idempotent.
func Class(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	cleaned := nonAlphanumeric.ReplaceAllString(strings.ToUpper(trimmed), "")
	if m := classPattern.FindStringSubmatch(cleaned); m != nil {
		return m[1] + " " + m[2]
	}
	return strings.ToUpper(trimmed)
}

// TitleCase uppercases the first letter of each whitespace-separated word and
// lowercases the rest, collapsing surrounding whitespace. Mirrors how roster
// names are stored.
func TitleCase(raw string) string {
	fields := strings.Fields(raw)
	for i, field := range fields {
		runes := []rune(strings.ToLower(field))
		for j, r := range runes {
			if unicode.IsLetter(r) {
				runes[j] = unicode.ToUpper(r)
				break
			}
		}
		fields[i] = string(runes)
	}
	return strings.Join(fields, " ")
}

// Score trims a raw score and drops a "/denominator" suffix: "8/10" -> "8".
// Idempotent; non-fraction values pass through trimmed.
func Score(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		trimmed = strings.TrimSpace(trimmed[:idx])
	}
	return trimmed
}
