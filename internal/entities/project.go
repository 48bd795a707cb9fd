package entities

import "time"

// Task priorities.
const (
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// TaskStatusPending is the status a task is created with.
const TaskStatusPending = "pending"

// Project is a contact's construction project.
type Project struct {
	ID          int64
	OwnerID     int64
	Name        string
	Description string
	Budget      *int64
	CreatedAt   time.Time
}

// NewProject is a project creation request.
type NewProject struct {
	OwnerID     int64
	Name        string
	Description string
	Budget      *int64
}

// Expense is a logged cost against a project.
type Expense struct {
	ID          int64
	ProjectID   int64
	ContactID   int64
	Amount      int64
	Description string
	Category    string
	CreatedAt   time.Time
}

// Task is a to-do item for a project.
type Task struct {
	ID        int64
	ProjectID int64
	ContactID int64
	Title     string
	Priority  string
	Status    string
	DueDate   string
	CreatedAt time.Time
}

// BudgetChange records a budget update on a project.
type BudgetChange struct {
	ProjectID      int64
	ContactID      int64
	PreviousBudget *int64
	NewBudget      int64
}

// Image is stored attachment metadata.
type Image struct {
	ID        int64
	ProjectID int64
	ContactID int64
	URL       string
	Caption   string
	ExpenseID *int64
	CreatedAt time.Time
}

// CategoryTotal is the sum of expenses in one category.
type CategoryTotal struct {
	Category string
	Total    int64
}

// SpendingSummary aggregates a project's expenses.
type SpendingSummary struct {
	Total      int64
	Count      int
	ByCategory []CategoryTotal // descending by Total
}
