package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"siteledger/internal/entities"
)

type ProjectRepository struct {
	db DB
}

func NewProjectRepository(db DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// ActiveProject returns the contact's most recently created project.
func (r *ProjectRepository) ActiveProject(ctx context.Context, contactID int64) (*entities.Project, error) {
	sql, args, err := psql.Select("id", "owner_id", "name", "description", "budget", "created_at").
		From("projects").
		Where("owner_id = ?", contactID).
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active project query: %w", err)
	}

	p, err := scanProject(querierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...))
	if err != nil {
		err = mapError(err, fmt.Sprintf("active project for contact %d", contactID))
		if errors.Is(err, entities.ErrNotFound) {
			return nil, entities.ErrNoActiveProject
		}
		return nil, err
	}
	return p, nil
}

// LockProject takes a row lock, so concurrent commands on one project see
// each other's totals. Outside a transaction the lock ends with the statement.
func (r *ProjectRepository) LockProject(ctx context.Context, projectID int64) (*entities.Project, error) {
	sql, args, err := psql.Select("id", "owner_id", "name", "description", "budget", "created_at").
		From("projects").
		Where("id = ?", projectID).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build project lock query: %w", err)
	}
	p, err := scanProject(querierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("lock project %d", projectID))
	}
	return p, nil
}

func scanProject(row pgx.Row) (*entities.Project, error) {
	var (
		p      entities.Project
		budget pgtype.Int8
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &budget, &p.CreatedAt); err != nil {
		return nil, err
	}
	if budget.Valid {
		v := budget.Int64
		p.Budget = &v
	}
	return &p, nil
}

func (r *ProjectRepository) CreateProject(ctx context.Context, np entities.NewProject) (*entities.Project, error) {
	if np.Budget != nil && *np.Budget <= 0 {
		return nil, entities.NewValidationError("budget", "must be positive")
	}
	sql, args, err := psql.Insert("projects").
		Columns("owner_id", "name", "description", "budget").
		Values(np.OwnerID, np.Name, np.Description, np.Budget).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build project insert: %w", err)
	}

	p := entities.Project{OwnerID: np.OwnerID, Name: np.Name, Description: np.Description, Budget: np.Budget}
	if err := querierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...).Scan(&p.ID, &p.CreatedAt); err != nil {
		return nil, mapError(err, "create project "+np.Name)
	}
	return &p, nil
}

func (r *ProjectRepository) SetProjectBudget(ctx context.Context, projectID, budget int64) error {
	sql, args, err := psql.Update("projects").
		Set("budget", budget).
		Where("id = ?", projectID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build budget update: %w", err)
	}
	tag, err := querierFromCtx(ctx, r.db).Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err, fmt.Sprintf("set budget on project %d", projectID))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %d: %w", projectID, entities.ErrNotFound)
	}
	return nil
}

func (r *ProjectRepository) CreateBudgetChange(ctx context.Context, c entities.BudgetChange) error {
	sql, args, err := psql.Insert("budget_changes").
		Columns("project_id", "contact_id", "previous_budget", "new_budget").
		Values(c.ProjectID, c.ContactID, c.PreviousBudget, c.NewBudget).
		ToSql()
	if err != nil {
		return fmt.Errorf("build budget change insert: %w", err)
	}
	if _, err := querierFromCtx(ctx, r.db).Exec(ctx, sql, args...); err != nil {
		return mapError(err, fmt.Sprintf("record budget change on project %d", c.ProjectID))
	}
	return nil
}
