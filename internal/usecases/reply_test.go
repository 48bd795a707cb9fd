package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"siteledger/internal/entities"
)

func newComposer() *ReplyComposer {
	return NewReplyComposer("SiteLedger", NewOnboarding(testRules).ProjectTypeNames())
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "IDR 950,000", FormatMoney("IDR", 950_000))
	assert.Equal(t, "USD 12", FormatMoney("USD", 12))
	assert.Equal(t, "IDR -40,000", FormatMoney("", -40_000))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "80.0%", FormatPercent(800_000, 1_000_000))
	assert.Equal(t, "33.3%", FormatPercent(1, 3))
	assert.Equal(t, "0.0%", FormatPercent(5, 0))
}

func TestReplyComposer_Prompt(t *testing.T) {
	r := newComposer()

	welcome := r.Prompt("en", "IDR", Step{Prompt: PromptWelcome}, nil)
	assert.Contains(t, welcome, "Welcome to SiteLedger")
	assert.Contains(t, welcome, "1. Residential house")
	assert.Contains(t, welcome, "5. Other")

	confirm := r.Prompt("en", "IDR", Step{Prompt: PromptConfirmation, Fields: entities.OnboardingFields{
		ProjectType: ptr("Renovation"),
		Location:    ptr(""),
		BudgetText:  ptr("250jt"),
		Budget:      i64(250_000_000),
	}}, nil)
	assert.Contains(t, confirm, "project type: Renovation")
	assert.Contains(t, confirm, "location: -")
	assert.Contains(t, confirm, "budget: IDR 250,000,000")

	unread := r.Prompt("en", "IDR", Step{Prompt: PromptConfirmation, Fields: entities.OnboardingFields{
		BudgetText: ptr("0"),
	}}, nil)
	assert.Contains(t, unread, `budget: - (couldn't read "0", no budget will be set)`)
	assert.NotContains(t, unread, "budget: 0")

	skipped := r.Prompt("id", "IDR", Step{Prompt: PromptConfirmation, Fields: entities.OnboardingFields{
		BudgetText: ptr(""),
	}}, nil)
	assert.NotContains(t, skipped, "tidak terbaca")

	created := r.Prompt("id", "IDR", Step{Prompt: PromptProjectCreated}, &entities.Project{Name: "Renovasi - Bogor"})
	assert.Contains(t, created, "Proyek dibuat:* Renovasi - Bogor")
}

func TestReplyComposer_Result(t *testing.T) {
	r := newComposer()
	project := &entities.Project{Name: "Renovation - Bandung", Budget: i64(1_000_000)}

	tests := []struct {
		name string
		lang string
		res  DispatchResult
		want []string
	}{
		{
			name: "expense with remaining budget",
			lang: "en",
			res: DispatchResult{
				Kind:    OutcomeExpenseLogged,
				Project: project,
				Expense: &entities.Expense{Amount: 50_000, Description: "cement", Category: "Materials"},
				Spent:   50_000, Remaining: i64(950_000),
			},
			want: []string{"IDR 50,000 for cement (Materials)", "Remaining budget: IDR 950,000"},
		},
		{
			name: "expense over warning threshold",
			lang: "en",
			res: DispatchResult{
				Kind:    OutcomeExpenseLogged,
				Project: project,
				Expense: &entities.Expense{Amount: 100_000, Description: "sand", Category: "Materials"},
				Spent:   850_000, Remaining: i64(150_000), BudgetWarning: true,
			},
			want: []string{"used 85.0% of the budget"},
		},
		{
			name: "over budget",
			lang: "en",
			res: DispatchResult{
				Kind:    OutcomeExpenseLogged,
				Project: project,
				Expense: &entities.Expense{Amount: 100_000, Description: "sand", Category: "Materials"},
				Spent:   1_100_000, Remaining: i64(-100_000), BudgetWarning: true,
			},
			want: []string{"Over budget by IDR 100,000"},
		},
		{
			name: "task",
			lang: "en",
			res: DispatchResult{
				Kind:         OutcomeTaskCreated,
				Task:         &entities.Task{Title: "inspect foundation", Priority: entities.PriorityMedium, DueDate: "friday"},
				PendingTasks: 3,
			},
			want: []string{"inspect foundation (priority: medium)", "Due: friday", "Pending tasks: 3"},
		},
		{
			name: "budget set",
			lang: "en",
			res: DispatchResult{
				Kind:           OutcomeBudgetSet,
				Project:        &entities.Project{Name: "Renovation - Bandung", Budget: i64(2_000_000)},
				PreviousBudget: i64(1_000_000),
				Spent:          50_000,
				Remaining:      i64(1_950_000),
			},
			want: []string{"Budget set to IDR 2,000,000", "Previous budget: IDR 1,000,000", "Spent so far: IDR 50,000", "Remaining budget: IDR 1,950,000"},
		},
		{
			name: "summary",
			lang: "en",
			res: DispatchResult{
				Kind:    OutcomeSummary,
				Project: project,
				Summary: &entities.SpendingSummary{Total: 300_000, Count: 2, ByCategory: []entities.CategoryTotal{
					{Category: "Materials", Total: 200_000}, {Category: "Labor", Total: 100_000},
				}},
				Spent: 300_000, Remaining: i64(700_000),
			},
			want: []string{"Total spent: IDR 300,000 (2 expenses)", "Budget used: 30.0% of IDR 1,000,000", "1. Materials: IDR 200,000", "2. Labor: IDR 100,000"},
		},
		{
			name: "indonesian no project",
			lang: "id",
			res:  DispatchResult{Kind: OutcomeNoActiveProject},
			want: []string{"belum punya proyek aktif"},
		},
		{
			name: "validation names the field",
			lang: "en",
			res:  DispatchResult{Kind: OutcomeValidationFailed, Field: "title"},
			want: []string{"valid task title"},
		},
		{
			name: "malformed amount echoes the input",
			lang: "en",
			res:  DispatchResult{Kind: OutcomeMalformedAmount, RawAmount: "1.2.3"},
			want: []string{`"1.2.3"`},
		},
		{
			name: "persistence failure apologizes",
			lang: "en",
			res:  DispatchResult{Kind: OutcomePersistenceFailed},
			want: []string{"Sorry, something went wrong"},
		},
		{
			name: "unknown language falls back to english",
			lang: "fr",
			res:  DispatchResult{Kind: OutcomeHelp},
			want: []string{"SiteLedger", "spent 50k on cement"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Result(tt.lang, "IDR", tt.res)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}
