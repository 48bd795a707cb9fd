package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"siteledger/internal/entities"
)

type ContactRepository struct {
	db DB
}

func NewContactRepository(db DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `id, address, display_name, currency, language,
	COALESCE(dialogue_state, ''), onboarding, state_version, completed_at, created_at`

// GetOrCreateContact returns the contact for address, creating it with the
// defaults on first contact. A non-empty display name refreshes the stored one.
func (r *ContactRepository) GetOrCreateContact(ctx context.Context, address, displayName string, defaults entities.ContactDefaults) (*entities.Contact, error) {
	row := querierFromCtx(ctx, r.db).QueryRow(ctx, `
		INSERT INTO contacts (address, display_name, currency, language)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE
		SET display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE contacts.display_name END
		RETURNING `+contactColumns,
		address, displayName, defaults.Currency, defaults.Language,
	)

	var (
		c         entities.Contact
		state     string
		fields    []byte
		completed pgtype.Timestamptz
	)
	err := row.Scan(&c.ID, &c.Address, &c.DisplayName, &c.Currency, &c.Language,
		&state, &fields, &c.Version, &completed, &c.CreatedAt)
	if err != nil {
		return nil, mapError(err, "get or create contact "+address)
	}

	c.State = entities.DialogueState(state)
	if !c.State.Valid() {
		return nil, fmt.Errorf("contact %d: unknown dialogue state %q", c.ID, state)
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &c.Fields); err != nil {
			return nil, fmt.Errorf("contact %d: decode onboarding fields: %w", c.ID, err)
		}
	}
	if completed.Valid {
		t := completed.Time
		c.CompletedAt = &t
	}
	return &c, nil
}

// UpdateDialogue is a compare-and-swap on state_version.
func (r *ContactRepository) UpdateDialogue(ctx context.Context, upd entities.DialogueUpdate) error {
	if !upd.State.Valid() {
		return entities.NewValidationError("dialogue_state", "unknown state")
	}
	if err := upd.Fields.Validate(); err != nil {
		return err
	}
	fields, err := json.Marshal(upd.Fields)
	if err != nil {
		return fmt.Errorf("encode onboarding fields: %w", err)
	}

	var state *string
	if upd.State != entities.StateNone {
		s := string(upd.State)
		state = &s
	}

	q := psql.Update("contacts").
		Set("dialogue_state", state).
		Set("onboarding", fields).
		Set("state_version", squirrel.Expr("state_version + 1"))
	if upd.CompletedAt != nil {
		q = q.Set("completed_at", *upd.CompletedAt)
	}
	sql, args, err := q.Where(squirrel.Eq{"id": upd.ContactID, "state_version": upd.ExpectedVersion}).ToSql()
	if err != nil {
		return fmt.Errorf("build dialogue update: %w", err)
	}

	tag, err := querierFromCtx(ctx, r.db).Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err, fmt.Sprintf("update dialogue for contact %d", upd.ContactID))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contact %d at version %d: %w", upd.ContactID, upd.ExpectedVersion, entities.ErrStateConflict)
	}
	return nil
}
