package entities

import "fmt"

// Intent is the classified purpose of a single inbound message.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentLogExpense
	IntentCreateTask
	IntentSetBudget
	IntentQueryExpenses
	IntentLogImage
)

var intentNames = map[Intent]string{
	IntentUnknown:       "unknown",
	IntentLogExpense:    "log_expense",
	IntentCreateTask:    "create_task",
	IntentSetBudget:     "set_budget",
	IntentQueryExpenses: "query_expenses",
	IntentLogImage:      "log_image",
}

// AllIntents lists every intent, unknown first.
func AllIntents() []Intent {
	return []Intent{
		IntentUnknown,
		IntentLogExpense,
		IntentCreateTask,
		IntentSetBudget,
		IntentQueryExpenses,
		IntentLogImage,
	}
}

func (i Intent) String() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return fmt.Sprintf("intent(%d)", int(i))
}

// ParseIntent maps a rules-file name back to an Intent.
func ParseIntent(name string) (Intent, error) {
	for intent, n := range intentNames {
		if n == name {
			return intent, nil
		}
	}
	return IntentUnknown, fmt.Errorf("%w: unknown intent %q", ErrInvalidInput, name)
}

// MarshalText renders the intent by name so it is readable in JSON output.
func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// ExtractedFields is the bag of typed values a pattern pulled out of the text.
type ExtractedFields struct {
	Amount       *int64 `json:"amount,omitempty"`
	Description  string `json:"description,omitempty"`
	Title        string `json:"title,omitempty"`
	DueDate      string `json:"due_date,omitempty"`
	CategoryHint string `json:"category_hint,omitempty"`
	RawAmount    string `json:"raw_amount,omitempty"` // set when an amount matched but did not parse
}

// Classification is the ephemeral result of classifying one message.
type Classification struct {
	Intent     Intent          `json:"intent"`
	Confidence float64         `json:"confidence"`
	Fields     ExtractedFields `json:"fields"`
	Lang       string          `json:"lang,omitempty"`
	Pattern    string          `json:"pattern,omitempty"` // id of the winning pattern
	Text       string          `json:"text"`              // normalized input
}

// Unknown returns the zero-confidence classification.
func Unknown() Classification {
	return Classification{Intent: IntentUnknown}
}
