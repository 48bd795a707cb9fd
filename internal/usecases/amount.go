package usecases

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"siteledger/internal/config"
)

var (
	plainNumber   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	dottedGrouped = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
)

// maxAmount keeps multiplied values well inside int64.
const maxAmount = 1e15

// ParseAmount converts a user-typed amount such as "50k", "Rp 2.500",
// "1,5jt" or "$1,200" to whole currency units. Zero, negative and
// non-numeric input are rejected.
func ParseAmount(raw string, rules *config.Rules) (int64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}

	for _, p := range rules.CurrencyPrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimLeft(strings.TrimPrefix(s, p), ". ")
			break
		}
	}

	multiplier := int64(1)
	for _, suf := range rules.Suffixes {
		if !strings.HasSuffix(s, suf.Suffix) {
			continue
		}
		head := strings.TrimSpace(strings.TrimSuffix(s, suf.Suffix))
		if head == "" || !isDigit(head[len(head)-1]) {
			continue
		}
		s = head
		multiplier = suf.Multiplier
		break
	}

	// "1,5jt": with a suffix, a lone comma not followed by three digits is a decimal mark.
	if multiplier > 1 && strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		if i := strings.IndexByte(s, ','); len(s)-i-1 != 3 {
			s = strings.Replace(s, ",", ".", 1)
		}
	}
	s = strings.ReplaceAll(s, ",", "")
	if multiplier == 1 && dottedGrouped.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	}
	if !plainNumber.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	v := math.Round(f * float64(multiplier))
	if v <= 0 || v > maxAmount {
		return 0, false
	}
	return int64(v), true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
