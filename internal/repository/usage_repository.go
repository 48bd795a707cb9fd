package repository

import (
	"context"
	"fmt"
	"time"

	"siteledger/internal/entities"
)

// UsageRepository aggregates message volume from message_audit.
type UsageRepository struct {
	db DB
}

func NewUsageRepository(db DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) DailyUsage(ctx context.Context, since time.Time) ([]entities.DailyUsage, error) {
	sql, args, err := psql.Select(
		"date_trunc('day', received_at AT TIME ZONE 'UTC') AS day",
		"count(*) FILTER (WHERE direction = 'inbound')",
		"count(*) FILTER (WHERE direction = 'outbound')",
		"count(*) FILTER (WHERE direction = 'inbound' AND error IS NOT NULL)",
	).
		From("message_audit").
		Where("received_at >= ?", since).
		GroupBy("day").
		OrderBy("day").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build usage query: %w", err)
	}

	rows, err := querierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query daily usage")
	}
	defer rows.Close()

	usage := []entities.DailyUsage{}
	for rows.Next() {
		var u entities.DailyUsage
		if err := rows.Scan(&u.Day, &u.Received, &u.Sent, &u.Failed); err != nil {
			return nil, mapError(err, "scan daily usage")
		}
		u.Day = u.Day.UTC()
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "iterate daily usage")
	}
	return usage, nil
}
