package usecases

import (
	"regexp"
	"strings"

	"siteledger/internal/config"
	"siteledger/internal/entities"
)

// Hints carries transport facts the text alone does not show.
type Hints struct {
	HasAttachment bool
	Lang          string
}

// IntentClassifier maps message text to a scored intent. It holds no state
// besides the immutable rules and is safe for concurrent use.
type IntentClassifier struct {
	rules *config.Rules
}

func NewIntentClassifier(rules *config.Rules) *IntentClassifier {
	return &IntentClassifier{rules: rules}
}

var spaces = regexp.MustCompile(`\s+`)

// normalizeText collapses whitespace and drops trailing sentence punctuation.
func normalizeText(text string) string {
	text = spaces.ReplaceAllString(strings.TrimSpace(text), " ")
	return strings.TrimRight(text, ".! ")
}

type candidate struct {
	pattern   config.Pattern
	fields    entities.ExtractedFields
	malformed bool
}

// Classify runs every intent group over text. Each group contributes its
// best valid match; matches under the group's floor are dropped; the highest
// confidence wins and equal confidences go to the earlier group.
func (c *IntentClassifier) Classify(text string, hints Hints) entities.Classification {
	text = normalizeText(text)
	if hints.HasAttachment {
		return c.classifyImage(text, hints)
	}
	if text == "" {
		return entities.Unknown()
	}

	var (
		best      *candidate
		bestGroup entities.Intent
		malformed *candidate
		malGroup  entities.Intent
	)
	for _, group := range c.rules.Groups {
		cand, bad := c.bestInGroup(group, text)
		floor := c.rules.Floor(group.Intent)
		if cand != nil && cand.pattern.Confidence >= floor {
			if best == nil || cand.pattern.Confidence > best.pattern.Confidence {
				best, bestGroup = cand, group.Intent
			}
		}
		if bad != nil && bad.pattern.Confidence >= floor &&
			(malformed == nil || bad.pattern.Confidence > malformed.pattern.Confidence) {
			malformed, malGroup = bad, group.Intent
		}
	}

	switch {
	case best != nil:
		return c.result(bestGroup, best, text)
	case malformed != nil:
		return c.result(malGroup, malformed, text)
	}
	unknown := entities.Unknown()
	unknown.Text = text
	return unknown
}

func (c *IntentClassifier) result(intent entities.Intent, cand *candidate, text string) entities.Classification {
	return entities.Classification{
		Intent:     intent,
		Confidence: cand.pattern.Confidence,
		Fields:     cand.fields,
		Lang:       cand.pattern.Lang,
		Pattern:    cand.pattern.ID,
		Text:       text,
	}
}

// bestInGroup returns the highest-confidence valid match in group and the
// highest-confidence match whose amount failed to parse.
func (c *IntentClassifier) bestInGroup(group config.IntentGroup, text string) (best, malformed *candidate) {
	for _, p := range group.Patterns {
		m := p.Regexp.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		cand := c.extract(group.Intent, p, m)
		if cand == nil {
			continue
		}
		if cand.malformed {
			if malformed == nil || p.Confidence > malformed.pattern.Confidence {
				malformed = cand
			}
			continue
		}
		if best == nil || p.Confidence > best.pattern.Confidence {
			best = cand
		}
	}
	return best, malformed
}

func (c *IntentClassifier) extract(intent entities.Intent, p config.Pattern, m []string) *candidate {
	cand := &candidate{pattern: p}
	group := func(name string) string {
		if i := p.Regexp.SubexpIndex(name); i >= 0 && i < len(m) {
			return strings.TrimSpace(m[i])
		}
		return ""
	}

	if raw := group("amount"); raw != "" {
		v, ok := ParseAmount(raw, c.rules)
		if ok {
			cand.fields.Amount = &v
		} else {
			cand.fields.RawAmount = raw
			cand.malformed = true
		}
	}
	text := strings.Trim(group("text"), " ,;:-")

	switch intent {
	case entities.IntentLogExpense:
		if text == "" || c.isCurrency(text) {
			return nil
		}
		if cand.fields.Amount == nil && !cand.malformed {
			return nil
		}
		cand.fields.Description = text
		if cat, ok := Categorize(text, c.rules); ok {
			cand.fields.CategoryHint = cat
		}
	case entities.IntentCreateTask:
		if text == "" {
			return nil
		}
		cand.fields.Title, cand.fields.DueDate = c.splitDue(text)
		if cand.fields.Title == "" {
			return nil
		}
	case entities.IntentSetBudget:
		if cand.fields.Amount == nil && !cand.malformed {
			return nil
		}
	}
	return cand
}

// isCurrency reports whether s is only a currency marker such as "Rp".
func (c *IntentClassifier) isCurrency(s string) bool {
	s = strings.ToLower(strings.TrimRight(s, "."))
	for _, p := range c.rules.CurrencyPrefixes {
		if s == p {
			return true
		}
	}
	return false
}

// splitDue separates a trailing due phrase from a task title.
func (c *IntentClassifier) splitDue(text string) (title, due string) {
	if c.rules.DuePhrase == nil {
		return text, ""
	}
	loc := c.rules.DuePhrase.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, ""
	}
	i := c.rules.DuePhrase.SubexpIndex("due")
	if i < 0 || loc[2*i] < 0 {
		return text, ""
	}
	due = text[loc[2*i]:loc[2*i+1]]
	title = strings.TrimSpace(text[:loc[0]])
	if title == "" {
		return text, ""
	}
	return title, due
}

// classifyImage treats every attachment as a log-image command. An amount in
// the caption is picked up with the expense patterns, ignoring their floor.
func (c *IntentClassifier) classifyImage(caption string, hints Hints) entities.Classification {
	out := entities.Classification{
		Intent:     entities.IntentLogImage,
		Confidence: 1,
		Lang:       hints.Lang,
		Text:       caption,
	}
	if caption == "" {
		return out
	}
	for _, group := range c.rules.Groups {
		if group.Intent != entities.IntentLogExpense {
			continue
		}
		if cand, _ := c.bestInGroup(group, caption); cand != nil {
			out.Fields = cand.fields
			out.Lang = cand.pattern.Lang
			out.Pattern = cand.pattern.ID
			return out
		}
	}
	if v, ok := ParseAmount(caption, c.rules); ok {
		out.Fields.Amount = &v
	}
	return out
}
