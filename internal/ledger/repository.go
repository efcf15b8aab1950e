package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides standalone ledger operations outside a settlement.
type Repository struct {
	pool db
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("ledger: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithDB(d db) *Repository {
	if d == nil {
		panic("ledger: db required")
	}
	return &Repository{pool: d}
}

// Balance returns the user's current materialized balance.
func (r *Repository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	query := `SELECT prepaid_balance_cents FROM users WHERE id = $1`
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUnknownUser
		}
		return 0, fmt.Errorf("ledger: load balance: %w", err)
	}
	return balance, nil
}

// TopUp credits a user's prepaid balance in its own transaction. Used for
// operator adjustments and top-ups.
func (r *Repository) TopUp(ctx context.Context, userID uuid.UUID, amountCents int64, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: begin top up: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := CreditInTx(ctx, tx, userID, amountCents, reason); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit top up: %w", err)
	}
	return nil
}

// Entries lists a user's ledger entries, oldest first.
func (r *Repository) Entries(ctx context.Context, userID uuid.UUID) ([]Entry, error) {
	query := `
		SELECT id, user_id, amount_cents, direction, reason, created_at
		FROM prepaid_ledger_entries
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.AmountCents, &e.Direction, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Verify recomputes the signed entry sum and compares it to the materialized
// balance. A mismatch means the lockstep invariant was broken somewhere.
func (r *Repository) Verify(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `
		SELECT u.prepaid_balance_cents,
		       COALESCE(SUM(CASE e.direction WHEN 'credit' THEN e.amount_cents ELSE -e.amount_cents END), 0)
		FROM users u
		LEFT JOIN prepaid_ledger_entries e ON e.user_id = u.id
		WHERE u.id = $1
		GROUP BY u.prepaid_balance_cents
	`
	var balance, sum int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&balance, &sum); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUnknownUser
		}
		return false, fmt.Errorf("ledger: verify: %w", err)
	}
	return balance == sum, nil
}
