package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"siteledger/internal/entities"
)

//go:embed rules.yaml
var defaultRules []byte

// Rules is the immutable pattern library and keyword configuration. It is
// built once at start-up and shared read-only by every request.
type Rules struct {
	Version          string
	Groups           []IntentGroup // priority order
	Floors           map[entities.Intent]float64
	DuePhrase        *regexp.Regexp
	Suffixes         []AmountSuffix // longest suffix first
	CurrencyPrefixes []string
	Categories       []Category
	FallbackCategory string
	WakePhrases      []string
	StartKeywords    []string
	AffirmTokens     []string
	EditTokens       []string
	SkipTokens       []string
	UrgencyKeywords  []string
	ProjectTypes     []ProjectType
}

// IntentGroup holds the surface patterns for one intent.
type IntentGroup struct {
	Intent   entities.Intent
	Patterns []Pattern
}

// Pattern is one compiled surface pattern with its base confidence.
type Pattern struct {
	ID         string
	Lang       string
	Confidence float64
	Regexp     *regexp.Regexp
}

// AmountSuffix is a locale shorthand such as "k" or "jt".
type AmountSuffix struct {
	Suffix     string
	Multiplier int64
}

// Category maps expense description keywords to a category name.
type Category struct {
	Name     string
	Keywords []string
}

// ProjectType is one numbered onboarding choice.
type ProjectType struct {
	Name    string
	Aliases []string
}

// Floor returns the minimum confidence for intent.
func (r *Rules) Floor(intent entities.Intent) float64 {
	return r.Floors[intent]
}

type rulesFile struct {
	Version string             `yaml:"version"`
	Floors  map[string]float64 `yaml:"floors"`
	Intents []struct {
		Intent   string `yaml:"intent"`
		Patterns []struct {
			ID         string  `yaml:"id"`
			Lang       string  `yaml:"lang"`
			Confidence float64 `yaml:"confidence"`
			Regex      string  `yaml:"regex"`
		} `yaml:"patterns"`
	} `yaml:"intents"`
	DuePhrase      string `yaml:"due_phrase"`
	AmountSuffixes []struct {
		Suffix     string `yaml:"suffix"`
		Multiplier int64  `yaml:"multiplier"`
	} `yaml:"amount_suffixes"`
	CurrencyPrefixes []string `yaml:"currency_prefixes"`
	Categories       []struct {
		Name     string   `yaml:"name"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"categories"`
	FallbackCategory string   `yaml:"fallback_category"`
	WakePhrases      []string `yaml:"wake_phrases"`
	StartKeywords    []string `yaml:"start_keywords"`
	AffirmTokens     []string `yaml:"affirm_tokens"`
	EditTokens       []string `yaml:"edit_tokens"`
	SkipTokens       []string `yaml:"skip_tokens"`
	UrgencyKeywords  []string `yaml:"urgency_keywords"`
	ProjectTypes     []struct {
		Name    string   `yaml:"name"`
		Aliases []string `yaml:"aliases"`
	} `yaml:"project_types"`
}

// LoadRules reads the rules file at path, or the embedded defaults when path
// is empty. productName fills the "{product}" placeholder in wake phrases.
func LoadRules(path, productName string) (*Rules, error) {
	data := defaultRules
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("rules: read %s: %w", path, err)
		}
		data = b
	}
	return ParseRules(data, productName)
}

// DefaultRules parses the embedded rules. It panics on error since the
// embedded file is covered by tests.
func DefaultRules(productName string) *Rules {
	r, err := ParseRules(defaultRules, productName)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseRules decodes and compiles a rules document.
func ParseRules(data []byte, productName string) (*Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("rules: decode: %w", err)
	}

	var errs []error
	r := &Rules{
		Version:          f.Version,
		Floors:           make(map[entities.Intent]float64, len(f.Floors)),
		CurrencyPrefixes: lowerAll(f.CurrencyPrefixes),
		FallbackCategory: f.FallbackCategory,
		StartKeywords:    lowerAll(f.StartKeywords),
		AffirmTokens:     lowerAll(f.AffirmTokens),
		EditTokens:       lowerAll(f.EditTokens),
		SkipTokens:       lowerAll(f.SkipTokens),
		UrgencyKeywords:  lowerAll(f.UrgencyKeywords),
	}

	product := strings.ToLower(strings.TrimSpace(productName))
	for _, w := range f.WakePhrases {
		r.WakePhrases = append(r.WakePhrases, strings.ReplaceAll(strings.ToLower(w), "{product}", product))
	}

	for name, floor := range f.Floors {
		intent, err := entities.ParseIntent(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("floors: %w", err))
			continue
		}
		if floor < 0 || floor > 1 {
			errs = append(errs, fmt.Errorf("floors: %s floor %.2f outside [0,1]", name, floor))
		}
		r.Floors[intent] = floor
	}

	for _, s := range f.AmountSuffixes {
		if s.Suffix == "" || s.Multiplier <= 0 {
			errs = append(errs, fmt.Errorf("amount_suffixes: invalid entry %q=%d", s.Suffix, s.Multiplier))
			continue
		}
		r.Suffixes = append(r.Suffixes, AmountSuffix{Suffix: strings.ToLower(s.Suffix), Multiplier: s.Multiplier})
	}
	sort.SliceStable(r.Suffixes, func(i, j int) bool {
		return len(r.Suffixes[i].Suffix) > len(r.Suffixes[j].Suffix)
	})

	amountExpr := r.amountExpr()
	seen := make(map[entities.Intent]bool)
	for _, g := range f.Intents {
		intent, err := entities.ParseIntent(g.Intent)
		if err != nil {
			errs = append(errs, fmt.Errorf("intents: %w", err))
			continue
		}
		if intent == entities.IntentUnknown || intent == entities.IntentLogImage {
			errs = append(errs, fmt.Errorf("intents: %s cannot have text patterns", g.Intent))
			continue
		}
		if seen[intent] {
			errs = append(errs, fmt.Errorf("intents: duplicate group %s", g.Intent))
			continue
		}
		seen[intent] = true
		if _, ok := r.Floors[intent]; !ok {
			errs = append(errs, fmt.Errorf("intents: no floor for %s", g.Intent))
		}

		group := IntentGroup{Intent: intent}
		for _, p := range g.Patterns {
			if p.Confidence <= 0 || p.Confidence > 1 {
				errs = append(errs, fmt.Errorf("pattern %s: confidence %.2f outside (0,1]", p.ID, p.Confidence))
				continue
			}
			expr := "(?i)" + strings.ReplaceAll(p.Regex, "{amount}", amountExpr)
			re, err := regexp.Compile(expr)
			if err != nil {
				errs = append(errs, fmt.Errorf("pattern %s: %w", p.ID, err))
				continue
			}
			group.Patterns = append(group.Patterns, Pattern{ID: p.ID, Lang: p.Lang, Confidence: p.Confidence, Regexp: re})
		}
		if len(group.Patterns) == 0 {
			errs = append(errs, fmt.Errorf("intents: %s has no patterns", g.Intent))
			continue
		}
		r.Groups = append(r.Groups, group)
	}
	if len(r.Groups) == 0 {
		errs = append(errs, errors.New("intents: at least one group is required"))
	}

	if f.DuePhrase != "" {
		re, err := regexp.Compile("(?i)" + f.DuePhrase)
		if err != nil {
			errs = append(errs, fmt.Errorf("due_phrase: %w", err))
		}
		r.DuePhrase = re
	}

	for _, c := range f.Categories {
		if c.Name == "" || len(c.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("categories: %q needs a name and keywords", c.Name))
			continue
		}
		r.Categories = append(r.Categories, Category{Name: c.Name, Keywords: lowerAll(c.Keywords)})
	}
	if r.FallbackCategory == "" {
		errs = append(errs, errors.New("fallback_category is required"))
	}

	for _, p := range f.ProjectTypes {
		r.ProjectTypes = append(r.ProjectTypes, ProjectType{Name: p.Name, Aliases: lowerAll(p.Aliases)})
	}
	if len(r.ProjectTypes) == 0 {
		errs = append(errs, errors.New("project_types: at least one type is required"))
	}
	if len(r.AffirmTokens) == 0 || len(r.EditTokens) == 0 || len(r.SkipTokens) == 0 {
		errs = append(errs, errors.New("affirm_tokens, edit_tokens and skip_tokens are required"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return r, nil
}

// amountExpr is the named "amount" group substituted for {amount}.
func (r *Rules) amountExpr() string {
	prefixes := make([]string, 0, len(r.CurrencyPrefixes))
	for _, p := range r.CurrencyPrefixes {
		prefixes = append(prefixes, regexp.QuoteMeta(p))
	}
	suffixes := make([]string, 0, len(r.Suffixes))
	for _, s := range r.Suffixes {
		suffixes = append(suffixes, regexp.QuoteMeta(s.Suffix))
	}

	expr := `\d[\d.,]*`
	if len(prefixes) > 0 {
		expr = `(?:(?:` + strings.Join(prefixes, "|") + `)\.?\s?)?` + expr
	}
	if len(suffixes) > 0 {
		expr += `(?:\s?(?:` + strings.Join(suffixes, "|") + `)\b)?`
	}
	return `(?P<amount>` + expr + `)`
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
