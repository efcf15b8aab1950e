package availability

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

// Repository persists weekly templates and date overrides.
type Repository struct {
	pool querier
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("availability: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("availability: querier required")
	}
	return &Repository{pool: q}
}

// GetWeeklyTemplate loads the stored template, or nil when none exists yet.
func (r *Repository) GetWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID) (*WeeklyTemplate, error) {
	query := `SELECT days FROM weekly_templates WHERE practitioner_id = $1`
	var raw []byte
	if err := r.pool.QueryRow(ctx, query, practitionerID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("availability: load weekly template: %w", err)
	}
	var tpl WeeklyTemplate
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return nil, fmt.Errorf("availability: decode weekly template: %w", err)
	}
	return &tpl, nil
}

// UpsertWeeklyTemplate stores the template, replacing any previous one.
func (r *Repository) UpsertWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID, tpl WeeklyTemplate) error {
	raw, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("availability: encode weekly template: %w", err)
	}
	query := `
		INSERT INTO weekly_templates (practitioner_id, days, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (practitioner_id) DO UPDATE SET days = EXCLUDED.days, updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, practitionerID, raw); err != nil {
		return fmt.Errorf("availability: upsert weekly template: %w", err)
	}
	return nil
}

// GetOverride loads the override for a date, or nil when none exists.
func (r *Repository) GetOverride(ctx context.Context, practitionerID uuid.UUID, day time.Time) (*DateOverride, error) {
	query := `
		SELECT id, practitioner_id, day, is_day_off, explicit_slots, updated_at
		FROM date_overrides
		WHERE practitioner_id = $1 AND day = $2
	`
	var (
		o   DateOverride
		raw []byte
	)
	err := r.pool.QueryRow(ctx, query, practitionerID, day).Scan(
		&o.ID, &o.PractitionerID, &o.Day, &o.IsDayOff, &raw, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("availability: load override: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o.ExplicitSlots); err != nil {
			return nil, fmt.Errorf("availability: decode explicit slots: %w", err)
		}
	}
	return &o, nil
}

// UpsertOverride stores the override for its date. The unique key on
// (practitioner_id, day) keeps at most one override per date.
func (r *Repository) UpsertOverride(ctx context.Context, o *DateOverride) error {
	var raw any
	if len(o.ExplicitSlots) > 0 {
		encoded, err := json.Marshal(o.ExplicitSlots)
		if err != nil {
			return fmt.Errorf("availability: encode explicit slots: %w", err)
		}
		raw = encoded
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	query := `
		INSERT INTO date_overrides (id, practitioner_id, day, is_day_off, explicit_slots, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (practitioner_id, day) DO UPDATE
		SET is_day_off = EXCLUDED.is_day_off, explicit_slots = EXCLUDED.explicit_slots, updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query, o.ID, o.PractitionerID, o.Day, o.IsDayOff, raw); err != nil {
		return fmt.Errorf("availability: upsert override: %w", err)
	}
	return nil
}

// DeleteOverride removes the override so the date falls back to the weekly
// template. Returns ErrNotFound when no override exists for the date.
func (r *Repository) DeleteOverride(ctx context.Context, practitionerID uuid.UUID, day time.Time) error {
	query := `DELETE FROM date_overrides WHERE practitioner_id = $1 AND day = $2`
	ct, err := r.pool.Exec(ctx, query, practitionerID, day)
	if err != nil {
		return fmt.Errorf("availability: delete override: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
