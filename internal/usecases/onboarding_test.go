package usecases

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteledger/internal/entities"
)

func TestOnboarding_IsStartTrigger(t *testing.T) {
	o := NewOnboarding(testRules)

	for _, text := range []string{"hey SiteLedger", "hey siteledger start", "Hi SiteLedger!", "start", "/start", "mulai", "New project"} {
		assert.True(t, o.IsStartTrigger(text), text)
	}
	for _, text := range []string{"", "hello", "hey there", "restart", "spent 50k on cement",
		"start excavation tomorrow", "setup scaffolding rental 500k", "new project please"} {
		assert.False(t, o.IsStartTrigger(text), text)
	}
}

func TestOnboarding_Handles(t *testing.T) {
	o := NewOnboarding(testRules)

	assert.True(t, o.Handles(entities.StateAwaitingLocation, "spent 50k on cement"))
	assert.True(t, o.Handles(entities.StateNone, "start"))
	assert.True(t, o.Handles(entities.StateCompleted, "hey siteledger"))
	assert.False(t, o.Handles(entities.StateNone, "spent 50k on cement"))
	assert.False(t, o.Handles(entities.StateCompleted, "task: inspect foundation"))
	assert.False(t, o.Handles(entities.StateCompleted, "setup scaffolding rental 500k"))
}

func TestOnboarding_Advance(t *testing.T) {
	o := NewOnboarding(testRules)
	typ, loc, start, budgetText := "Renovation", "Bandung", "next month", "250jt"

	tests := []struct {
		name       string
		state      entities.DialogueState
		fields     entities.OnboardingFields
		text       string
		wantVia    entities.DialogueState
		wantNext   entities.DialogueState
		wantPrompt PromptKind
		wantFields entities.OnboardingFields
	}{
		{
			name:       "start",
			state:      entities.StateNone,
			text:       "hey siteledger start",
			wantVia:    entities.StateWelcomeSent,
			wantNext:   entities.StateAwaitingProjectType,
			wantPrompt: PromptWelcome,
		},
		{
			name:       "restart after completion",
			state:      entities.StateCompleted,
			text:       "start",
			wantVia:    entities.StateWelcomeSent,
			wantNext:   entities.StateAwaitingProjectType,
			wantPrompt: PromptWelcome,
		},
		{
			name:       "resting on welcome asks for the type",
			state:      entities.StateWelcomeSent,
			text:       "what do you mean",
			wantNext:   entities.StateAwaitingProjectType,
			wantPrompt: PromptProjectType,
		},
		{
			name:       "numbered choice",
			state:      entities.StateAwaitingProjectType,
			text:       "2",
			wantNext:   entities.StateAwaitingLocation,
			wantPrompt: PromptLocation,
			wantFields: entities.OnboardingFields{ProjectType: &typ},
		},
		{
			name:       "alias choice",
			state:      entities.StateAwaitingProjectType,
			text:       "renovasi",
			wantNext:   entities.StateAwaitingLocation,
			wantPrompt: PromptLocation,
			wantFields: entities.OnboardingFields{ProjectType: &typ},
		},
		{
			name:       "free text project type",
			state:      entities.StateAwaitingProjectType,
			text:       "warehouse",
			wantNext:   entities.StateAwaitingLocation,
			wantPrompt: PromptLocation,
			wantFields: entities.OnboardingFields{ProjectType: ptr("warehouse")},
		},
		{
			name:       "location",
			state:      entities.StateAwaitingLocation,
			fields:     entities.OnboardingFields{ProjectType: &typ},
			text:       "Bandung",
			wantNext:   entities.StateAwaitingStartDate,
			wantPrompt: PromptStartDate,
			wantFields: entities.OnboardingFields{ProjectType: &typ, Location: &loc},
		},
		{
			name:       "skipped location is stored empty",
			state:      entities.StateAwaitingLocation,
			text:       "skip",
			wantNext:   entities.StateAwaitingStartDate,
			wantPrompt: PromptStartDate,
			wantFields: entities.OnboardingFields{Location: ptr("")},
		},
		{
			name:       "commands are answers while the dialogue is active",
			state:      entities.StateAwaitingLocation,
			text:       "spent 50k on cement",
			wantNext:   entities.StateAwaitingStartDate,
			wantPrompt: PromptStartDate,
			wantFields: entities.OnboardingFields{Location: ptr("spent 50k on cement")},
		},
		{
			name:       "start date",
			state:      entities.StateAwaitingStartDate,
			text:       "next month",
			wantNext:   entities.StateAwaitingBudget,
			wantPrompt: PromptBudget,
			wantFields: entities.OnboardingFields{StartDate: &start},
		},
		{
			name:       "budget is parsed",
			state:      entities.StateAwaitingBudget,
			text:       "250jt",
			wantNext:   entities.StateConfirmation,
			wantPrompt: PromptConfirmation,
			wantFields: entities.OnboardingFields{BudgetText: &budgetText, Budget: i64(250_000_000)},
		},
		{
			name:       "unparseable budget is kept as text",
			state:      entities.StateAwaitingBudget,
			text:       "a lot",
			wantNext:   entities.StateConfirmation,
			wantPrompt: PromptConfirmation,
			wantFields: entities.OnboardingFields{BudgetText: ptr("a lot")},
		},
		{
			name:       "edit resets to welcome",
			state:      entities.StateConfirmation,
			fields:     entities.OnboardingFields{ProjectType: &typ, Location: &loc},
			text:       "edit",
			wantVia:    entities.StateWelcomeSent,
			wantNext:   entities.StateAwaitingProjectType,
			wantPrompt: PromptWelcome,
		},
		{
			name:       "skip finishes without a project",
			state:      entities.StateConfirmation,
			fields:     entities.OnboardingFields{ProjectType: &typ},
			text:       "skip",
			wantNext:   entities.StateCompleted,
			wantPrompt: PromptSkipped,
		},
		{
			name:       "other text repeats the confirmation",
			state:      entities.StateConfirmation,
			fields:     entities.OnboardingFields{ProjectType: &typ},
			text:       "hmm",
			wantNext:   entities.StateConfirmation,
			wantPrompt: PromptConfirmation,
			wantFields: entities.OnboardingFields{ProjectType: &typ},
		},
		{
			name:       "empty text re-prompts",
			state:      entities.StateAwaitingStartDate,
			fields:     entities.OnboardingFields{Location: &loc},
			text:       "   ",
			wantNext:   entities.StateAwaitingStartDate,
			wantPrompt: PromptStartDate,
			wantFields: entities.OnboardingFields{Location: &loc},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := o.Advance(tt.state, tt.fields, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantVia, step.Via)
			assert.Equal(t, tt.wantNext, step.Next)
			assert.Equal(t, tt.wantPrompt, step.Prompt)
			assert.Equal(t, tt.wantFields, step.Fields)
			assert.Nil(t, step.Project)
		})
	}
}

func TestOnboarding_ConfirmCreatesProject(t *testing.T) {
	o := NewOnboarding(testRules)
	fields := entities.OnboardingFields{
		ProjectType: ptr("Renovation"),
		Location:    ptr("Bandung"),
		StartDate:   ptr("next month"),
		BudgetText:  ptr("250jt"),
		Budget:      i64(250_000_000),
	}

	step, err := o.Advance(entities.StateConfirmation, fields, "Yes!")
	require.NoError(t, err)
	assert.True(t, step.Completed())
	assert.Equal(t, PromptProjectCreated, step.Prompt)
	require.NotNil(t, step.Project)
	assert.Equal(t, "Renovation - Bandung", step.Project.Name)
	assert.Equal(t, "Renovation project in Bandung, starting next month", step.Project.Description)
	require.NotNil(t, step.Project.Budget)
	assert.Equal(t, int64(250_000_000), *step.Project.Budget)
}

func TestOnboarding_TooLongAnswer(t *testing.T) {
	o := NewOnboarding(testRules)

	_, err := o.Advance(entities.StateAwaitingLocation, entities.OnboardingFields{}, strings.Repeat("a", 201))
	require.Error(t, err)
	var verr *entities.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "location", verr.Errors[0].Field)
	assert.ErrorIs(t, err, entities.ErrInvalidInput)

	step, err := o.Advance(entities.StateAwaitingLocation, entities.OnboardingFields{}, strings.Repeat("a", 200))
	require.NoError(t, err)
	assert.Equal(t, entities.StateAwaitingStartDate, step.Next)
}

// Only the confirmation state can complete the dialogue.
func TestOnboarding_NoShortcutToCompleted(t *testing.T) {
	o := NewOnboarding(testRules)
	inputs := []string{"yes", "skip", "edit", "start", "hey siteledger", "1", "250jt", "", "-"}
	states := []entities.DialogueState{
		entities.StateWelcomeSent,
		entities.StateAwaitingProjectType,
		entities.StateAwaitingLocation,
		entities.StateAwaitingStartDate,
		entities.StateAwaitingBudget,
	}
	for _, state := range states {
		for _, in := range inputs {
			step, err := o.Advance(state, entities.OnboardingFields{}, in)
			require.NoError(t, err)
			assert.NotEqual(t, entities.StateCompleted, step.Next, "%s + %q", state, in)
			assert.Nil(t, step.Project)
		}
	}
}

// Every hop a step makes, including the one through Via, is a transition of
// the dialogue table or a re-prompt of the current state.
func TestOnboarding_TransitionsFollowTable(t *testing.T) {
	o := NewOnboarding(testRules)
	allowed := map[entities.DialogueState][]entities.DialogueState{
		entities.StateNone:                {entities.StateWelcomeSent},
		entities.StateCompleted:           {entities.StateWelcomeSent},
		entities.StateWelcomeSent:         {entities.StateAwaitingProjectType},
		entities.StateAwaitingProjectType: {entities.StateAwaitingLocation},
		entities.StateAwaitingLocation:    {entities.StateAwaitingStartDate},
		entities.StateAwaitingStartDate:   {entities.StateAwaitingBudget},
		entities.StateAwaitingBudget:      {entities.StateConfirmation},
		entities.StateConfirmation:        {entities.StateCompleted, entities.StateWelcomeSent},
	}
	inputs := []string{"start", "hey siteledger", "1", "2", "renovasi", "skip", "yes", "edit", "Bandung", "250jt", "", "hmm"}

	for from := range allowed {
		for _, in := range inputs {
			if !from.Active() && !o.IsStartTrigger(in) {
				continue
			}
			step, err := o.Advance(from, entities.OnboardingFields{}, in)
			require.NoError(t, err)

			prev := from
			for _, next := range step.Path() {
				if next != prev {
					assert.Contains(t, allowed[prev], next, "%s + %q", from, in)
				}
				prev = next
			}
			if from == entities.StateWelcomeSent {
				assert.NotEqual(t, entities.StateAwaitingLocation, step.Next, "%q", in)
			}
		}
	}
}

func TestOnboarding_DeriveProject(t *testing.T) {
	o := NewOnboarding(testRules)

	tests := []struct {
		name     string
		fields   entities.OnboardingFields
		wantName string
		wantDesc string
	}{
		{"type and location", entities.OnboardingFields{ProjectType: ptr("Residential house"), Location: ptr("Depok")},
			"Residential house - Depok", "Residential house project in Depok"},
		{"type only", entities.OnboardingFields{ProjectType: ptr("Renovation"), Location: ptr("")},
			"Renovation", "Renovation project"},
		{"location only", entities.OnboardingFields{ProjectType: ptr(""), Location: ptr("Depok"), StartDate: ptr("June")},
			"Depok", "Construction project in Depok, starting June"},
		{"nothing", entities.OnboardingFields{}, "My Project", "Construction project"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := o.DeriveProject(tt.fields)
			assert.Equal(t, tt.wantName, p.Name)
			assert.Equal(t, tt.wantDesc, p.Description)
			assert.Nil(t, p.Budget)
		})
	}
}
