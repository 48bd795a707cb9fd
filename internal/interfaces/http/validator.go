package http

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Input limits for webhook payloads.
const (
	MaxExternalIDLength  = 128
	MaxAddressLength     = 64
	MaxDisplayNameLength = 128
	MaxBodyLength        = 4096
	MaxAttachments       = 10
)

var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9:_.\-]+$`)

// ValidExternalID checks a transport message id.
func ValidExternalID(s string) bool {
	return s != "" && len(s) <= MaxExternalIDLength && externalIDPattern.MatchString(s)
}

// ValidAddress checks a sender address such as "whatsapp:+6281234567890".
func ValidAddress(s string) bool {
	return strings.TrimSpace(s) != "" && len(s) <= MaxAddressLength
}

// SanitizeString removes null bytes, invalid UTF-8 and control characters
// other than newlines and tabs.
func SanitizeString(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// TruncateString cuts s to at most maxRunes runes.
func TruncateString(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes])
}

// CleanText sanitizes and truncates free text from a webhook.
func CleanText(s string, maxRunes int) string {
	return TruncateString(SanitizeString(s), maxRunes)
}
