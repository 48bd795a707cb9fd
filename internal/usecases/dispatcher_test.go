package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"siteledger/internal/entities"
	"siteledger/internal/repository"
)

// failingLedger makes expense inserts fail.
type failingLedger struct {
	*repository.MemoryStore
}

func (failingLedger) CreateExpense(context.Context, entities.Expense) (*entities.Expense, error) {
	return nil, errors.New("connection refused")
}

func newDispatcher(store dispatchStore) *CommandDispatcher {
	return NewCommandDispatcher(store, testRules, zap.NewNop())
}

func classify(text string) entities.Classification {
	return NewIntentClassifier(testRules).Classify(text, Hints{})
}

func TestCommandDispatcher_LogExpense(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	contact, project := seedProject(t, store, "+628111", i64(1_000_000))

	res := newDispatcher(store).Dispatch(ctx, contact, classify("spent 50000 on cement"), nil)
	require.Equal(t, OutcomeExpenseLogged, res.Kind)
	require.NotNil(t, res.Expense)
	assert.Equal(t, int64(50_000), res.Expense.Amount)
	assert.Equal(t, "Materials", res.Expense.Category)
	require.NotNil(t, res.Remaining)
	assert.Equal(t, int64(950_000), *res.Remaining)
	assert.False(t, res.BudgetWarning)
	assert.Len(t, store.Expenses(project.ID), 1)
}

func TestCommandDispatcher_BudgetWarningBoundary(t *testing.T) {
	tests := []struct {
		name  string
		prior int64
		amt   string
		warn  bool
		left  int64
	}{
		{"just under", 749_999, "spent 50000 on sand", false, 200_001},
		{"exactly eighty percent", 750_000, "spent 50000 on sand", true, 200_000},
		{"over budget", 990_000, "spent 50000 on sand", true, -40_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := repository.NewMemoryStore()
			contact, project := seedProject(t, store, "+628111", i64(1_000_000))
			_, err := store.CreateExpense(ctx, entities.Expense{ProjectID: project.ID, ContactID: contact.ID, Amount: tt.prior, Category: "Labor"})
			require.NoError(t, err)

			res := newDispatcher(store).Dispatch(ctx, contact, classify(tt.amt), nil)
			require.Equal(t, OutcomeExpenseLogged, res.Kind)
			assert.Equal(t, tt.warn, res.BudgetWarning)
			require.NotNil(t, res.Remaining)
			assert.Equal(t, tt.left, *res.Remaining)
		})
	}
}

func TestCommandDispatcher_ConcurrentExpensesSeeEachOther(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	contact, project := seedProject(t, store, "+628111", i64(1_000_000))
	_, err := store.CreateExpense(ctx, entities.Expense{ProjectID: project.ID, ContactID: contact.ID, Amount: 700_000, Category: "Labor"})
	require.NoError(t, err)
	d := newDispatcher(store)

	results := make([]DispatchResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.Dispatch(ctx, contact, classify("spent 50000 on sand"), nil)
		}()
	}
	wg.Wait()

	var spent []int64
	warned := 0
	for _, res := range results {
		require.Equal(t, OutcomeExpenseLogged, res.Kind)
		spent = append(spent, res.Spent)
		if res.BudgetWarning {
			warned++
		}
	}
	assert.ElementsMatch(t, []int64{750_000, 800_000}, spent)
	assert.Equal(t, 1, warned)
	assert.Len(t, store.Expenses(project.ID), 3)
}

func TestCommandDispatcher_ExpenseWithoutBudget(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	contact, _ := seedProject(t, store, "+628111", nil)

	res := newDispatcher(store).Dispatch(ctx, contact, classify("5000 lunch"), nil)
	require.Equal(t, OutcomeExpenseLogged, res.Kind)
	assert.Equal(t, "Miscellaneous", res.Expense.Category)
	assert.Nil(t, res.Remaining)
	assert.Equal(t, int64(5_000), res.Spent)
}

func TestCommandDispatcher_RejectsBeforePersisting(t *testing.T) {
	ctx := context.Background()

	t.Run("no active project", func(t *testing.T) {
		store := repository.NewMemoryStore()
		contact, err := store.GetOrCreateContact(ctx, "+628111", "", entities.ContactDefaults{Currency: "IDR", Language: "en"})
		require.NoError(t, err)

		for _, text := range []string{"spent 50000 on cement", "task: inspect foundation", "set budget 2jt", "summary"} {
			res := newDispatcher(store).Dispatch(ctx, contact, classify(text), nil)
			assert.Equal(t, OutcomeNoActiveProject, res.Kind, text)
		}
		assert.Empty(t, store.Tasks(contact.ID))
	})

	t.Run("missing amount", func(t *testing.T) {
		store := repository.NewMemoryStore()
		contact, project := seedProject(t, store, "+628111", nil)
		cls := entities.Classification{Intent: entities.IntentLogExpense, Fields: entities.ExtractedFields{Description: "cement"}}

		res := newDispatcher(store).Dispatch(ctx, contact, cls, nil)
		assert.Equal(t, OutcomeValidationFailed, res.Kind)
		assert.Equal(t, "amount", res.Field)
		assert.Empty(t, store.Expenses(project.ID))
	})

	t.Run("missing description", func(t *testing.T) {
		store := repository.NewMemoryStore()
		contact, _ := seedProject(t, store, "+628111", nil)
		cls := entities.Classification{Intent: entities.IntentLogExpense, Fields: entities.ExtractedFields{Amount: i64(10)}}

		res := newDispatcher(store).Dispatch(ctx, contact, cls, nil)
		assert.Equal(t, OutcomeValidationFailed, res.Kind)
		assert.Equal(t, "description", res.Field)
	})

	t.Run("malformed amount", func(t *testing.T) {
		store := repository.NewMemoryStore()
		contact, project := seedProject(t, store, "+628111", nil)

		res := newDispatcher(store).Dispatch(ctx, contact, classify("spent 1.2.3 on cement"), nil)
		assert.Equal(t, OutcomeMalformedAmount, res.Kind)
		assert.Equal(t, "1.2.3", res.RawAmount)
		assert.Empty(t, store.Expenses(project.ID))
	})
}

func TestCommandDispatcher_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	contact, project := seedProject(t, mem, "+628111", i64(1_000_000))

	res := newDispatcher(failingLedger{mem}).Dispatch(ctx, contact, classify("spent 50000 on cement"), nil)
	assert.Equal(t, OutcomePersistenceFailed, res.Kind)
	assert.ErrorContains(t, res.Err, "connection refused")
	assert.Empty(t, mem.Expenses(project.ID))
}

func TestCommandDispatcher_CreateTask(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	contact, _ := seedProject(t, store, "+628111", nil)
	d := newDispatcher(store)

	res := d.Dispatch(ctx, contact, classify("task: inspect foundation"), nil)
	require.Equal(t, OutcomeTaskCreated, res.Kind)
	assert.Equal(t, "inspect foundation", res.Task.Title)
	assert.Equal(t, entities.PriorityMedium, res.Task.Priority)
	assert.Equal(t, entities.TaskStatusPending, res.Task.Status)
	assert.Equal(t, 1, res.PendingTasks)

	res = d.Dispatch(ctx, contact, classify("task: fix water leak urgent"), nil)
	require.Equal(t, OutcomeTaskCreated, res.Kind)
	assert.Equal(t, entities.PriorityHigh, res.Task.Priority)
	assert.Equal(t, 2, res.PendingTasks)
}

func TestCommandDispatcher_SetBudget(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	contact, project := seedProject(t, store, "+628111", i64(1_000_000))
	_, err := store.CreateExpense(ctx, entities.Expense{ProjectID: project.ID, ContactID: contact.ID, Amount: 300_000, Category: "Materials"})
	require.NoError(t, err)

	res := newDispatcher(store).Dispatch(ctx, contact, classify("set budget 2000000"), nil)
	require.Equal(t, OutcomeBudgetSet, res.Kind)
	require.NotNil(t, res.PreviousBudget)
	assert.Equal(t, int64(1_000_000), *res.PreviousBudget)
	assert.Equal(t, int64(300_000), res.Spent)
	require.NotNil(t, res.Remaining)
	assert.Equal(t, int64(1_700_000), *res.Remaining)

	active, err := store.ActiveProject(ctx, contact.ID)
	require.NoError(t, err)
	require.NotNil(t, active.Budget)
	assert.Equal(t, int64(2_000_000), *active.Budget)
}

func TestCommandDispatcher_QueryExpenses(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	contact, project := seedProject(t, store, "+628111", i64(1_000_000))
	for cat, amt := range map[string]int64{"Materials": 400_000, "Labor": 200_000, "Equipment": 100_000, "Transport": 50_000} {
		_, err := store.CreateExpense(ctx, entities.Expense{ProjectID: project.ID, ContactID: contact.ID, Amount: amt, Category: cat})
		require.NoError(t, err)
	}

	res := newDispatcher(store).Dispatch(ctx, contact, classify("summary"), nil)
	require.Equal(t, OutcomeSummary, res.Kind)
	assert.Equal(t, int64(750_000), res.Summary.Total)
	assert.Equal(t, 4, res.Summary.Count)
	require.Len(t, res.Summary.ByCategory, 3)
	assert.Equal(t, "Materials", res.Summary.ByCategory[0].Category)
	assert.Equal(t, "Equipment", res.Summary.ByCategory[2].Category)
	assert.Equal(t, int64(250_000), *res.Remaining)
}

func TestCommandDispatcher_LogImage(t *testing.T) {
	ctx := context.Background()
	urls := []string{"https://example.com/a.jpg", "https://example.com/b.jpg"}

	t.Run("caption with amount", func(t *testing.T) {
		store := repository.NewMemoryStore()
		contact, project := seedProject(t, store, "+628111", i64(1_000_000))
		cls := NewIntentClassifier(testRules).Classify("spent 75k on sand", Hints{HasAttachment: true})

		res := newDispatcher(store).Dispatch(ctx, contact, cls, urls)
		require.Equal(t, OutcomeImageLogged, res.Kind)
		require.NotNil(t, res.Expense)
		assert.Equal(t, "Materials", res.Expense.Category)
		require.Len(t, res.Images, 2)
		for _, img := range store.Images(project.ID) {
			require.NotNil(t, img.ExpenseID)
			assert.Equal(t, res.Expense.ID, *img.ExpenseID)
		}
	})

	t.Run("bare amount uses receipt description", func(t *testing.T) {
		store := repository.NewMemoryStore()
		contact, _ := seedProject(t, store, "+628111", nil)
		cls := NewIntentClassifier(testRules).Classify("150000", Hints{HasAttachment: true})

		res := newDispatcher(store).Dispatch(ctx, contact, cls, urls[:1])
		require.Equal(t, OutcomeImageLogged, res.Kind)
		require.NotNil(t, res.Expense)
		assert.Equal(t, receiptDescription, res.Expense.Description)
		assert.Equal(t, "Miscellaneous", res.Expense.Category)
	})

	t.Run("no caption", func(t *testing.T) {
		store := repository.NewMemoryStore()
		contact, project := seedProject(t, store, "+628111", nil)
		cls := NewIntentClassifier(testRules).Classify("", Hints{HasAttachment: true})

		res := newDispatcher(store).Dispatch(ctx, contact, cls, urls[:1])
		require.Equal(t, OutcomeImageLogged, res.Kind)
		assert.Nil(t, res.Expense)
		assert.Empty(t, store.Expenses(project.ID))
		require.Len(t, store.Images(project.ID), 1)
		assert.Nil(t, store.Images(project.ID)[0].ExpenseID)
	})
}

func TestCommandDispatcher_EveryIntentHasAnOutcome(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	contact, _ := seedProject(t, store, "+628111", i64(1_000_000))
	d := newDispatcher(store)

	want := map[entities.Intent]OutcomeKind{
		entities.IntentUnknown:       OutcomeHelp,
		entities.IntentLogExpense:    OutcomeValidationFailed,
		entities.IntentCreateTask:    OutcomeValidationFailed,
		entities.IntentSetBudget:     OutcomeValidationFailed,
		entities.IntentQueryExpenses: OutcomeSummary,
		entities.IntentLogImage:      OutcomeValidationFailed,
	}
	for _, intent := range entities.AllIntents() {
		res := d.Dispatch(ctx, contact, entities.Classification{Intent: intent}, nil)
		assert.Equal(t, want[intent], res.Kind, intent.String())
		assert.Equal(t, intent, res.Intent)
	}

	res := d.Dispatch(ctx, contact, entities.Classification{Intent: entities.Intent(99)}, nil)
	assert.Equal(t, OutcomeHelp, res.Kind)
	assert.Error(t, res.Err)
}

func TestOutcomeKind_String(t *testing.T) {
	assert.Equal(t, "expense_logged", OutcomeExpenseLogged.String())
	assert.Equal(t, "persistence_failed", OutcomePersistenceFailed.String())
	assert.Equal(t, "outcome(42)", OutcomeKind(42).String())
}
