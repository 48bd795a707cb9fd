package usecases

import (
	"strings"
	"unicode"

	"siteledger/internal/config"
)

// normalizeWords lowercases s and reduces it to single-space separated words
// wrapped in spaces, so that " kw " containment is a whole-word match.
func normalizeWords(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&'
	})
	return " " + strings.Join(words, " ") + " "
}

func containsKeyword(normalized, keyword string) bool {
	return strings.Contains(normalized, normalizeWords(keyword))
}

// Categorize returns the first category whose keywords appear in the
// description. ok is false when nothing matched and the fallback was used.
func Categorize(description string, rules *config.Rules) (category string, ok bool) {
	words := normalizeWords(description)
	for _, c := range rules.Categories {
		for _, kw := range c.Keywords {
			if containsKeyword(words, kw) {
				return c.Name, true
			}
		}
	}
	return rules.FallbackCategory, false
}

// IsUrgent reports whether text carries one of the urgency keywords.
func IsUrgent(text string, rules *config.Rules) bool {
	words := normalizeWords(text)
	for _, kw := range rules.UrgencyKeywords {
		if containsKeyword(words, kw) {
			return true
		}
	}
	return false
}

func matchesToken(text string, tokens []string) bool {
	t := strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".!")
	for _, tok := range tokens {
		if t == tok {
			return true
		}
	}
	return false
}
