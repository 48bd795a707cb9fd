package entities

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DialogueState is the position of a contact in the onboarding dialogue.
type DialogueState string

const (
	StateNone                DialogueState = ""
	StateWelcomeSent         DialogueState = "welcome_sent"
	StateAwaitingProjectType DialogueState = "awaiting_project_type"
	StateAwaitingLocation    DialogueState = "awaiting_location"
	StateAwaitingStartDate   DialogueState = "awaiting_start_date"
	StateAwaitingBudget      DialogueState = "awaiting_budget"
	StateConfirmation        DialogueState = "confirmation"
	StateCompleted           DialogueState = "completed"
)

// Active reports whether a dialogue is in progress. None and completed are
// the only states in which one-shot commands are dispatched.
func (s DialogueState) Active() bool {
	switch s {
	case StateWelcomeSent, StateAwaitingProjectType, StateAwaitingLocation,
		StateAwaitingStartDate, StateAwaitingBudget, StateConfirmation:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s DialogueState) Valid() bool {
	return s == StateNone || s == StateCompleted || s.Active()
}

func (s DialogueState) String() string {
	if s == StateNone {
		return "none"
	}
	return string(s)
}

// OnboardingFields is the partial project record accumulated during the
// dialogue. Nil means "not answered yet"; an empty string means "skipped".
type OnboardingFields struct {
	ProjectType *string `json:"project_type,omitempty"`
	Location    *string `json:"location,omitempty"`
	StartDate   *string `json:"start_date,omitempty"`
	BudgetText  *string `json:"budget_text,omitempty"`
	Budget      *int64  `json:"budget,omitempty"`
}

// MaxOnboardingFieldLength bounds each free-text onboarding answer, in runes.
const MaxOnboardingFieldLength = 200

// IsEmpty reports whether no field has been collected.
func (f OnboardingFields) IsEmpty() bool {
	return f.ProjectType == nil && f.Location == nil && f.StartDate == nil &&
		f.BudgetText == nil && f.Budget == nil
}

// Validate checks the record before it is persisted.
func (f OnboardingFields) Validate() error {
	var errs []FieldError
	check := func(name string, v *string) {
		if v != nil && utf8.RuneCountInString(*v) > MaxOnboardingFieldLength {
			errs = append(errs, FieldError{Field: name, Message: "max 200 characters"})
		}
	}
	check("project_type", f.ProjectType)
	check("location", f.Location)
	check("start_date", f.StartDate)
	check("budget_text", f.BudgetText)
	if f.Budget != nil && *f.Budget <= 0 {
		errs = append(errs, FieldError{Field: "budget", Message: "must be positive"})
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Contact is one distinct sender address.
type Contact struct {
	ID          int64
	Address     string
	DisplayName string
	Currency    string
	Language    string
	State       DialogueState
	Fields      OnboardingFields
	Version     int64 // optimistic lock for dialogue read-modify-write
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// ContactDefaults are applied when a contact is first seen.
type ContactDefaults struct {
	Currency string
	Language string
}

// DialogueUpdate is a conditional write of a contact's dialogue state.
type DialogueUpdate struct {
	ContactID       int64
	ExpectedVersion int64
	State           DialogueState
	Fields          OnboardingFields
	CompletedAt     *time.Time
}

// NormalizeAddress strips transport prefixes such as "whatsapp:" and the
// WhatsApp JID suffix so that one person maps to one contact.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.TrimPrefix(addr, "whatsapp:")
	addr = strings.TrimSuffix(addr, "@s.whatsapp.net")
	return addr
}
