package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

func newPgRepositoryWithDB(db querier) *PgRepository {
	return &PgRepository{db: db}
}

func (r *PgRepository) GetTemplate(ctx context.Context, providerID uuid.UUID) (*WeeklyTemplate, error) {
	var (
		id          uuid.UUID
		slotMinutes int
		raw         []byte
		updatedAt   time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT provider_id, slot_minutes, days, updated_at
		FROM weekly_templates
		WHERE provider_id = $1
	`, providerID).Scan(&id, &slotMinutes, &raw, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("select weekly template: %w", err)
	}

	var days [7]Day
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &days); err != nil {
			return nil, fmt.Errorf("decode weekly template days: %w", err)
		}
	}
	return FromDays(id, slotMinutes, days, updatedAt)
}

func (r *PgRepository) SaveTemplate(ctx context.Context, t *WeeklyTemplate) error {
	days := t.Days()
	raw, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("encode weekly template days: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO weekly_templates (provider_id, slot_minutes, days, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_id) DO UPDATE
		SET slot_minutes = EXCLUDED.slot_minutes,
		    days = EXCLUDED.days,
		    updated_at = EXCLUDED.updated_at
	`, t.ProviderID, t.SlotMinutes, raw, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert weekly template: %w", err)
	}
	return nil
}
