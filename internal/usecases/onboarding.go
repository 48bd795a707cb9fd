package usecases

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"siteledger/internal/config"
	"siteledger/internal/entities"
)

// PromptKind selects the reply rendered for an onboarding step.
type PromptKind int

const (
	PromptWelcome PromptKind = iota
	PromptProjectType
	PromptLocation
	PromptStartDate
	PromptBudget
	PromptConfirmation
	PromptProjectCreated
	PromptSkipped
)

// Step is the outcome of one onboarding turn. When Via is set the dialogue
// passes through it before Next in the same turn, and both are persisted.
type Step struct {
	Via     entities.DialogueState
	Next    entities.DialogueState
	Fields  entities.OnboardingFields
	Prompt  PromptKind
	Project *entities.NewProject // set when the confirmation was affirmed
}

// Path lists the states entered by the step, in order.
func (s Step) Path() []entities.DialogueState {
	if s.Via == entities.StateNone {
		return []entities.DialogueState{s.Next}
	}
	return []entities.DialogueState{s.Via, s.Next}
}

// welcomeStep sends the welcome with the numbered project types. The
// welcome itself asks for the type, so the dialogue rests on
// awaiting-project-type.
var welcomeStep = Step{
	Via:    entities.StateWelcomeSent,
	Next:   entities.StateAwaitingProjectType,
	Prompt: PromptWelcome,
}

// Completed reports whether the step ends the dialogue.
func (s Step) Completed() bool {
	return s.Next == entities.StateCompleted
}

// Onboarding is the project-setup dialogue. It only computes transitions;
// the caller persists the result and performs the project creation.
type Onboarding struct {
	rules *config.Rules
}

func NewOnboarding(rules *config.Rules) *Onboarding {
	return &Onboarding{rules: rules}
}

// IsStartTrigger reports whether text opens a dialogue: a message starting
// with a wake phrase such as "hey siteledger", or a start keyword sent on its
// own. "start excavation tomorrow" is not a trigger.
func (o *Onboarding) IsStartTrigger(text string) bool {
	t := strings.ToLower(normalizeText(text))
	t = strings.TrimPrefix(t, "/")
	if t == "" {
		return false
	}
	for _, w := range o.rules.WakePhrases {
		if t == w || strings.HasPrefix(t, w+" ") || strings.HasPrefix(t, w+",") {
			return true
		}
	}
	for _, kw := range o.rules.StartKeywords {
		if t == kw {
			return true
		}
	}
	return false
}

// Handles reports whether the dialogue consumes a message in state.
func (o *Onboarding) Handles(state entities.DialogueState, text string) bool {
	return state.Active() || o.IsStartTrigger(text)
}

// Advance computes the next state and fields for text. Unrecognized text
// is stored as the raw value of the field being asked for. The only error
// is a *entities.ValidationError for an over-long answer.
func (o *Onboarding) Advance(state entities.DialogueState, fields entities.OnboardingFields, text string) (Step, error) {
	t := normalizeText(text)

	if !state.Active() {
		return welcomeStep, nil
	}
	if t == "" {
		return Step{Next: state, Fields: fields, Prompt: o.PromptFor(state)}, nil
	}

	skip := matchesToken(t, o.rules.SkipTokens)
	if !skip && storesAnswer(state) && utf8.RuneCountInString(t) > entities.MaxOnboardingFieldLength {
		return Step{}, entities.NewValidationError(fieldFor(state), "max 200 characters")
	}
	value := t
	if skip {
		value = ""
	}

	switch state {
	case entities.StateWelcomeSent:
		// Only rows written before the welcome moved on rest here.
		return o.step(entities.StateAwaitingProjectType, fields)

	case entities.StateAwaitingProjectType:
		if name, ok := o.projectType(t); ok {
			value = name
		}
		fields.ProjectType = ptr(value)
		return o.step(entities.StateAwaitingLocation, fields)

	case entities.StateAwaitingLocation:
		fields.Location = ptr(value)
		return o.step(entities.StateAwaitingStartDate, fields)

	case entities.StateAwaitingStartDate:
		fields.StartDate = ptr(value)
		return o.step(entities.StateAwaitingBudget, fields)

	case entities.StateAwaitingBudget:
		fields.BudgetText = ptr(value)
		fields.Budget = nil
		if v, ok := ParseAmount(value, o.rules); ok {
			fields.Budget = &v
		}
		return o.step(entities.StateConfirmation, fields)

	case entities.StateConfirmation:
		switch {
		case matchesToken(t, o.rules.AffirmTokens):
			project := o.DeriveProject(fields)
			return Step{Next: entities.StateCompleted, Prompt: PromptProjectCreated, Project: &project}, nil
		case matchesToken(t, o.rules.EditTokens):
			return welcomeStep, nil
		case skip:
			return Step{Next: entities.StateCompleted, Prompt: PromptSkipped}, nil
		}
		return Step{Next: entities.StateConfirmation, Fields: fields, Prompt: PromptConfirmation}, nil
	}
	return Step{Next: state, Fields: fields, Prompt: o.PromptFor(state)}, nil
}

func (o *Onboarding) step(next entities.DialogueState, fields entities.OnboardingFields) (Step, error) {
	if err := fields.Validate(); err != nil {
		return Step{}, err
	}
	return Step{Next: next, Fields: fields, Prompt: o.PromptFor(next)}, nil
}

// PromptFor is the prompt sent on entering state.
func (o *Onboarding) PromptFor(state entities.DialogueState) PromptKind {
	switch state {
	case entities.StateAwaitingProjectType:
		return PromptProjectType
	case entities.StateAwaitingLocation:
		return PromptLocation
	case entities.StateAwaitingStartDate:
		return PromptStartDate
	case entities.StateAwaitingBudget:
		return PromptBudget
	case entities.StateConfirmation:
		return PromptConfirmation
	case entities.StateCompleted:
		return PromptSkipped
	}
	return PromptWelcome
}

// ProjectTypeNames lists the numbered choices in order.
func (o *Onboarding) ProjectTypeNames() []string {
	names := make([]string, 0, len(o.rules.ProjectTypes))
	for _, p := range o.rules.ProjectTypes {
		names = append(names, p.Name)
	}
	return names
}

// projectType resolves "2", "renovation" or "Renovation" to a type name.
func (o *Onboarding) projectType(text string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if n, err := strconv.Atoi(strings.TrimSuffix(t, ".")); err == nil {
		if n >= 1 && n <= len(o.rules.ProjectTypes) {
			return o.rules.ProjectTypes[n-1].Name, true
		}
		return "", false
	}
	for _, p := range o.rules.ProjectTypes {
		if t == strings.ToLower(p.Name) {
			return p.Name, true
		}
		for _, a := range p.Aliases {
			if t == a {
				return p.Name, true
			}
		}
	}
	return "", false
}

// DeriveProject builds the creation request from the collected fields.
func (o *Onboarding) DeriveProject(f entities.OnboardingFields) entities.NewProject {
	typ, loc, start := deref(f.ProjectType), deref(f.Location), deref(f.StartDate)

	var name string
	switch {
	case typ != "" && loc != "":
		name = typ + " - " + loc
	case typ != "":
		name = typ
	case loc != "":
		name = loc
	default:
		name = "My Project"
	}

	base := typ
	if base == "" {
		base = "Construction"
	}
	desc := base + " project"
	if loc != "" {
		desc += " in " + loc
	}
	if start != "" {
		desc += ", starting " + start
	}

	var budget *int64
	if f.Budget != nil {
		v := *f.Budget
		budget = &v
	}
	return entities.NewProject{Name: name, Description: desc, Budget: budget}
}

func storesAnswer(state entities.DialogueState) bool {
	switch state {
	case entities.StateAwaitingProjectType, entities.StateAwaitingLocation,
		entities.StateAwaitingStartDate, entities.StateAwaitingBudget:
		return true
	}
	return false
}

func fieldFor(state entities.DialogueState) string {
	switch state {
	case entities.StateAwaitingProjectType:
		return "project_type"
	case entities.StateAwaitingLocation:
		return "location"
	case entities.StateAwaitingStartDate:
		return "start_date"
	case entities.StateAwaitingBudget:
		return "budget"
	}
	return "text"
}

func ptr(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
