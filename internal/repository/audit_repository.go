package repository

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"siteledger/internal/entities"
)

// AuditRepository is the message log. The unique external_id column makes
// inbound inserts the idempotency check.
type AuditRepository struct {
	db DB
}

func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) insert(ctx context.Context, e entities.AuditEntry, suffix string) (int64, error) {
	var externalID *string
	if e.ExternalID != "" {
		externalID = &e.ExternalID
	}
	attachments := e.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	q := psql.Insert("message_audit").
		Columns("id", "external_id", "contact_addr", "direction", "body", "attachments",
			"processed", "reply_to", "received_at", "processed_at").
		Values(e.ID, externalID, e.ContactAddr, string(e.Direction), e.Body, attachments,
			e.Processed, e.ReplyTo, e.ReceivedAt, e.ProcessedAt)
	if suffix != "" {
		q = q.Suffix(suffix)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build audit insert: %w", err)
	}
	tag, err := querierFromCtx(ctx, r.db).Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError(err, fmt.Sprintf("insert %s audit entry", e.Direction))
	}
	return tag.RowsAffected(), nil
}

func (r *AuditRepository) CreateInbound(ctx context.Context, e entities.AuditEntry) (*entities.AuditEntry, bool, error) {
	if e.ExternalID == "" {
		return nil, false, entities.NewValidationError("external_id", "required")
	}
	e.Direction = entities.DirectionInbound
	n, err := r.insert(ctx, e, "ON CONFLICT (external_id) DO NOTHING")
	if err != nil {
		return nil, false, err
	}
	if n == 1 {
		return &e, true, nil
	}
	existing, err := r.FindInbound(ctx, e.ExternalID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *AuditRepository) FindInbound(ctx context.Context, externalID string) (*entities.AuditEntry, error) {
	sql, args, err := psql.Select("id", "external_id", "contact_addr", "body", "attachments", "processed",
		"COALESCE(intent, '')", "COALESCE(error, '')", "received_at", "processed_at").
		From("message_audit").
		Where(squirrel.Eq{"external_id": externalID, "direction": string(entities.DirectionInbound)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit lookup: %w", err)
	}

	var (
		e             entities.AuditEntry
		intent, errTx string
		processedAt   pgtype.Timestamptz
	)
	err = querierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...).Scan(&e.ID, &e.ExternalID, &e.ContactAddr,
		&e.Body, &e.Attachments, &e.Processed, &intent, &errTx, &e.ReceivedAt, &processedAt)
	if err != nil {
		return nil, mapError(err, "inbound message "+externalID)
	}
	e.Direction = entities.DirectionInbound
	if intent != "" {
		e.Intent = &intent
	}
	if errTx != "" {
		e.Error = &errTx
	}
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}
	return &e, nil
}

// FindReply returns the outbound entry answering inboundID.
func (r *AuditRepository) FindReply(ctx context.Context, inboundID uuid.UUID) (*entities.AuditEntry, error) {
	sql, args, err := psql.Select("id", "contact_addr", "body", "received_at").
		From("message_audit").
		Where("reply_to = ?", inboundID).
		OrderBy("received_at").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build reply lookup: %w", err)
	}

	e := entities.AuditEntry{Direction: entities.DirectionOutbound, Processed: true, ReplyTo: &inboundID}
	err = querierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...).Scan(&e.ID, &e.ContactAddr, &e.Body, &e.ReceivedAt)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("reply to %s", inboundID))
	}
	processed := e.ReceivedAt
	e.ProcessedAt = &processed
	return &e, nil
}

func (r *AuditRepository) MarkProcessed(ctx context.Context, res entities.AuditResult) error {
	sql, args, err := psql.Update("message_audit").
		Set("processed", true).
		Set("intent", squirrel.Expr("NULLIF(?, '')", res.Intent)).
		Set("error", squirrel.Expr("NULLIF(?, '')", res.Error)).
		Set("processed_at", squirrel.Expr("now()")).
		Where("id = ?", res.ID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit update: %w", err)
	}
	tag, err := querierFromCtx(ctx, r.db).Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err, fmt.Sprintf("mark %s processed", res.ID))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("audit entry %s: %w", res.ID, entities.ErrNotFound)
	}
	return nil
}

func (r *AuditRepository) CreateOutbound(ctx context.Context, e entities.AuditEntry) error {
	if e.ReplyTo == nil {
		return fmt.Errorf("%w: outbound audit entry needs reply_to", entities.ErrInvalidInput)
	}
	e.Direction = entities.DirectionOutbound
	e.ExternalID = ""
	_, err := r.insert(ctx, e, "")
	return err
}
