package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"siteledger/internal/entities"
)

// LedgerRepository stores expenses, tasks and images.
type LedgerRepository struct {
	db DB
}

func NewLedgerRepository(db DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) insertReturning(ctx context.Context, q squirrel.InsertBuilder, what string, dest ...any) error {
	sql, args, err := q.Suffix("RETURNING id, created_at").ToSql()
	if err != nil {
		return fmt.Errorf("build %s insert: %w", what, err)
	}
	if err := querierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...).Scan(dest...); err != nil {
		return mapError(err, "create "+what)
	}
	return nil
}

func (r *LedgerRepository) CreateExpense(ctx context.Context, e entities.Expense) (*entities.Expense, error) {
	if e.Amount <= 0 {
		return nil, entities.NewValidationError("amount", "must be positive")
	}
	q := psql.Insert("expenses").
		Columns("project_id", "contact_id", "amount", "description", "category").
		Values(e.ProjectID, e.ContactID, e.Amount, e.Description, e.Category)
	if err := r.insertReturning(ctx, q, "expense", &e.ID, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *LedgerRepository) CreateTask(ctx context.Context, t entities.Task) (*entities.Task, error) {
	q := psql.Insert("tasks").
		Columns("project_id", "contact_id", "title", "priority", "status", "due_date").
		Values(t.ProjectID, t.ContactID, t.Title, t.Priority, t.Status, t.DueDate)
	if err := r.insertReturning(ctx, q, "task", &t.ID, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *LedgerRepository) CreateImage(ctx context.Context, img entities.Image) (*entities.Image, error) {
	q := psql.Insert("images").
		Columns("project_id", "contact_id", "url", "caption", "expense_id").
		Values(img.ProjectID, img.ContactID, img.URL, img.Caption, img.ExpenseID)
	if err := r.insertReturning(ctx, q, "image", &img.ID, &img.CreatedAt); err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *LedgerRepository) CountPendingTasks(ctx context.Context, contactID int64) (int, error) {
	sql, args, err := psql.Select("COUNT(*)").
		From("tasks").
		Where(squirrel.Eq{"contact_id": contactID, "status": entities.TaskStatusPending}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build task count: %w", err)
	}
	var n int
	if err := querierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, mapError(err, fmt.Sprintf("count pending tasks for contact %d", contactID))
	}
	return n, nil
}

// SpendingSummary sums a project's expenses, largest category first.
func (r *LedgerRepository) SpendingSummary(ctx context.Context, projectID int64) (*entities.SpendingSummary, error) {
	sql, args, err := psql.Select("category", "SUM(amount)::bigint AS total", "COUNT(*)").
		From("expenses").
		Where("project_id = ?", projectID).
		GroupBy("category").
		OrderBy("total DESC", "category").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build spending summary: %w", err)
	}

	rows, err := querierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("spending summary for project %d", projectID))
	}
	defer rows.Close()

	summary := &entities.SpendingSummary{}
	for rows.Next() {
		var (
			ct    entities.CategoryTotal
			count int
		)
		if err := rows.Scan(&ct.Category, &ct.Total, &count); err != nil {
			return nil, mapError(err, "scan spending summary")
		}
		summary.Total += ct.Total
		summary.Count += count
		summary.ByCategory = append(summary.ByCategory, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "iterate spending summary")
	}
	return summary, nil
}
