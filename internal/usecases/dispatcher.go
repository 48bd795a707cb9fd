package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"siteledger/internal/config"
	"siteledger/internal/entities"
	"siteledger/internal/interfaces"
)

// OutcomeKind tags a DispatchResult.
type OutcomeKind int

const (
	OutcomeHelp OutcomeKind = iota
	OutcomeExpenseLogged
	OutcomeTaskCreated
	OutcomeBudgetSet
	OutcomeSummary
	OutcomeImageLogged
	OutcomeNoActiveProject
	OutcomeValidationFailed
	OutcomeMalformedAmount
	OutcomePersistenceFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeHelp:
		return "help"
	case OutcomeExpenseLogged:
		return "expense_logged"
	case OutcomeTaskCreated:
		return "task_created"
	case OutcomeBudgetSet:
		return "budget_set"
	case OutcomeSummary:
		return "summary"
	case OutcomeImageLogged:
		return "image_logged"
	case OutcomeNoActiveProject:
		return "no_active_project"
	case OutcomeValidationFailed:
		return "validation_failed"
	case OutcomeMalformedAmount:
		return "malformed_amount"
	case OutcomePersistenceFailed:
		return "persistence_failed"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// budgetWarningPercent is the share of the budget at which a warning is shown.
const budgetWarningPercent = 80

// DispatchResult is what a command handler did, for the reply composer.
type DispatchResult struct {
	Kind    OutcomeKind
	Intent  entities.Intent
	Project *entities.Project
	Expense *entities.Expense
	Task    *entities.Task
	Images  []entities.Image

	Spent          int64  // project total after the command
	Remaining      *int64 // nil when the project has no budget
	PreviousBudget *int64
	BudgetWarning  bool
	PendingTasks   int
	Summary        *entities.SpendingSummary

	Field     string // validation failures
	RawAmount string // malformed amounts
	Err       error  // persistence failures
}

type dispatchStore interface {
	interfaces.ProjectStore
	interfaces.LedgerStore
	interfaces.TxRunner
}

// CommandDispatcher runs the one-shot command for a classification.
type CommandDispatcher struct {
	store  dispatchStore
	rules  *config.Rules
	logger *zap.Logger
}

func NewCommandDispatcher(store dispatchStore, rules *config.Rules, logger *zap.Logger) *CommandDispatcher {
	return &CommandDispatcher{
		store:  store,
		rules:  rules,
		logger: logger.With(zap.String("component", "dispatcher")),
	}
}

// Dispatch runs the handler for cls.Intent. It never returns an error;
// failures are reported through the result kind.
func (d *CommandDispatcher) Dispatch(ctx context.Context, contact *entities.Contact, cls entities.Classification, attachments []string) DispatchResult {
	var res DispatchResult
	switch cls.Intent {
	case entities.IntentLogExpense:
		res = d.logExpense(ctx, contact, cls)
	case entities.IntentCreateTask:
		res = d.createTask(ctx, contact, cls)
	case entities.IntentSetBudget:
		res = d.setBudget(ctx, contact, cls)
	case entities.IntentQueryExpenses:
		res = d.queryExpenses(ctx, contact)
	case entities.IntentLogImage:
		res = d.logImage(ctx, contact, cls, attachments)
	case entities.IntentUnknown:
		res = DispatchResult{Kind: OutcomeHelp}
	default:
		res = DispatchResult{Kind: OutcomeHelp, Err: fmt.Errorf("no handler for %s", cls.Intent)}
	}
	res.Intent = cls.Intent
	if res.Kind == OutcomePersistenceFailed {
		d.logger.Error("command failed",
			zap.String("intent", cls.Intent.String()),
			zap.Int64("contact_id", contact.ID),
			zap.Error(res.Err),
		)
	}
	return res
}

func (d *CommandDispatcher) activeProject(ctx context.Context, contact *entities.Contact) (*entities.Project, *DispatchResult) {
	p, err := d.store.ActiveProject(ctx, contact.ID)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, entities.ErrNoActiveProject), errors.Is(err, entities.ErrNotFound):
		return nil, &DispatchResult{Kind: OutcomeNoActiveProject}
	}
	return nil, failed(fmt.Errorf("active project: %w", err))
}

func failed(err error) *DispatchResult {
	return &DispatchResult{Kind: OutcomePersistenceFailed, Err: err}
}

func invalid(field string) DispatchResult {
	return DispatchResult{Kind: OutcomeValidationFailed, Field: field}
}

// requireAmount distinguishes a missing amount from one that did not parse.
func requireAmount(f entities.ExtractedFields) (int64, *DispatchResult) {
	if f.Amount != nil && *f.Amount > 0 {
		return *f.Amount, nil
	}
	if f.RawAmount != "" {
		return 0, &DispatchResult{Kind: OutcomeMalformedAmount, RawAmount: f.RawAmount}
	}
	r := invalid("amount")
	return 0, &r
}

func checkText(field, v string) *DispatchResult {
	if strings.TrimSpace(v) == "" || utf8.RuneCountInString(v) > entities.MaxOnboardingFieldLength {
		r := invalid(field)
		return &r
	}
	return nil
}

func (d *CommandDispatcher) category(f entities.ExtractedFields) string {
	if f.CategoryHint != "" {
		return f.CategoryHint
	}
	cat, _ := Categorize(f.Description, d.rules)
	return cat
}

func (d *CommandDispatcher) logExpense(ctx context.Context, contact *entities.Contact, cls entities.Classification) DispatchResult {
	amount, bad := requireAmount(cls.Fields)
	if bad != nil {
		return *bad
	}
	if bad := checkText("description", cls.Fields.Description); bad != nil {
		return *bad
	}
	project, bad := d.activeProject(ctx, contact)
	if bad != nil {
		return *bad
	}

	res := DispatchResult{Kind: OutcomeExpenseLogged}
	err := d.store.RunInTx(ctx, func(ctx context.Context) error {
		locked, err := d.store.LockProject(ctx, project.ID)
		if err != nil {
			return fmt.Errorf("lock project: %w", err)
		}
		res.Project = locked
		prior, err := d.store.SpendingSummary(ctx, project.ID)
		if err != nil {
			return fmt.Errorf("spending summary: %w", err)
		}
		expense, err := d.store.CreateExpense(ctx, entities.Expense{
			ProjectID:   project.ID,
			ContactID:   contact.ID,
			Amount:      amount,
			Description: cls.Fields.Description,
			Category:    d.category(cls.Fields),
		})
		if err != nil {
			return fmt.Errorf("create expense: %w", err)
		}
		res.Expense = expense
		res.Spent = prior.Total + amount
		return nil
	})
	if err != nil {
		return *failed(err)
	}
	res.Remaining, res.BudgetWarning = remaining(res.Project.Budget, res.Spent)
	return res
}

// remaining is budget minus spent. warn is set once spent reaches the
// warning share of the budget.
func remaining(budget *int64, spent int64) (left *int64, warn bool) {
	if budget == nil {
		return nil, false
	}
	v := *budget - spent
	return &v, spent*100 >= *budget*budgetWarningPercent
}

func (d *CommandDispatcher) createTask(ctx context.Context, contact *entities.Contact, cls entities.Classification) DispatchResult {
	if bad := checkText("title", cls.Fields.Title); bad != nil {
		return *bad
	}
	project, bad := d.activeProject(ctx, contact)
	if bad != nil {
		return *bad
	}

	priority := entities.PriorityMedium
	if IsUrgent(cls.Text, d.rules) {
		priority = entities.PriorityHigh
	}
	task, err := d.store.CreateTask(ctx, entities.Task{
		ProjectID: project.ID,
		ContactID: contact.ID,
		Title:     cls.Fields.Title,
		Priority:  priority,
		Status:    entities.TaskStatusPending,
		DueDate:   cls.Fields.DueDate,
	})
	if err != nil {
		return *failed(fmt.Errorf("create task: %w", err))
	}
	pending, err := d.store.CountPendingTasks(ctx, contact.ID)
	if err != nil {
		return *failed(fmt.Errorf("count tasks: %w", err))
	}
	return DispatchResult{Kind: OutcomeTaskCreated, Project: project, Task: task, PendingTasks: pending}
}

func (d *CommandDispatcher) setBudget(ctx context.Context, contact *entities.Contact, cls entities.Classification) DispatchResult {
	amount, bad := requireAmount(cls.Fields)
	if bad != nil {
		return *bad
	}
	project, bad := d.activeProject(ctx, contact)
	if bad != nil {
		return *bad
	}

	var (
		spent    int64
		previous *int64
	)
	err := d.store.RunInTx(ctx, func(ctx context.Context) error {
		locked, err := d.store.LockProject(ctx, project.ID)
		if err != nil {
			return fmt.Errorf("lock project: %w", err)
		}
		previous = locked.Budget
		summary, err := d.store.SpendingSummary(ctx, project.ID)
		if err != nil {
			return fmt.Errorf("spending summary: %w", err)
		}
		spent = summary.Total
		if err := d.store.SetProjectBudget(ctx, project.ID, amount); err != nil {
			return fmt.Errorf("set budget: %w", err)
		}
		return d.store.CreateBudgetChange(ctx, entities.BudgetChange{
			ProjectID:      project.ID,
			ContactID:      contact.ID,
			PreviousBudget: previous,
			NewBudget:      amount,
		})
	})
	if err != nil {
		return *failed(err)
	}

	updated := *project
	updated.Budget = &amount
	res := DispatchResult{
		Kind:           OutcomeBudgetSet,
		Project:        &updated,
		PreviousBudget: previous,
		Spent:          spent,
	}
	res.Remaining, res.BudgetWarning = remaining(&amount, spent)
	return res
}

// topCategories is how many categories the summary lists.
const topCategories = 3

func (d *CommandDispatcher) queryExpenses(ctx context.Context, contact *entities.Contact) DispatchResult {
	project, bad := d.activeProject(ctx, contact)
	if bad != nil {
		return *bad
	}
	summary, err := d.store.SpendingSummary(ctx, project.ID)
	if err != nil {
		return *failed(fmt.Errorf("spending summary: %w", err))
	}
	if len(summary.ByCategory) > topCategories {
		trimmed := *summary
		trimmed.ByCategory = summary.ByCategory[:topCategories]
		summary = &trimmed
	}
	res := DispatchResult{Kind: OutcomeSummary, Project: project, Summary: summary, Spent: summary.Total}
	res.Remaining, res.BudgetWarning = remaining(project.Budget, summary.Total)
	return res
}

// receiptDescription is used when a captioned amount has no text with it.
const receiptDescription = "Receipt photo"

func (d *CommandDispatcher) logImage(ctx context.Context, contact *entities.Contact, cls entities.Classification, attachments []string) DispatchResult {
	if len(attachments) == 0 {
		return invalid("attachment")
	}
	project, bad := d.activeProject(ctx, contact)
	if bad != nil {
		return *bad
	}

	res := DispatchResult{Kind: OutcomeImageLogged, Project: project}
	err := d.store.RunInTx(ctx, func(ctx context.Context) error {
		var expenseID *int64
		if amt := cls.Fields.Amount; amt != nil && *amt > 0 {
			locked, err := d.store.LockProject(ctx, project.ID)
			if err != nil {
				return fmt.Errorf("lock project: %w", err)
			}
			res.Project = locked
			prior, err := d.store.SpendingSummary(ctx, project.ID)
			if err != nil {
				return fmt.Errorf("spending summary: %w", err)
			}
			fields := cls.Fields
			if fields.Description == "" {
				fields.Description = receiptDescription
			}
			expense, err := d.store.CreateExpense(ctx, entities.Expense{
				ProjectID:   project.ID,
				ContactID:   contact.ID,
				Amount:      *amt,
				Description: fields.Description,
				Category:    d.category(fields),
			})
			if err != nil {
				return fmt.Errorf("create expense: %w", err)
			}
			res.Expense = expense
			res.Spent = prior.Total + *amt
			res.Remaining, res.BudgetWarning = remaining(locked.Budget, res.Spent)
			expenseID = &expense.ID
		}
		for _, url := range attachments {
			img, err := d.store.CreateImage(ctx, entities.Image{
				ProjectID: project.ID,
				ContactID: contact.ID,
				URL:       url,
				Caption:   cls.Text,
				ExpenseID: expenseID,
			})
			if err != nil {
				return fmt.Errorf("create image: %w", err)
			}
			res.Images = append(res.Images, *img)
		}
		return nil
	})
	if err != nil {
		return *failed(err)
	}
	return res
}
