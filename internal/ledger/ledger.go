// Package ledger keeps the prepaid balance and its append-only entry log in
// lockstep. The balance column on users is a materialized counter; it is only
// ever mutated in the same transaction that appends an entry, so it always
// equals the signed sum of the user's entries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Direction classifies a ledger entry.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

var (
	// ErrInsufficientBalance is returned when a debit would overdraw the
	// balance. No mutation happens in that case.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrUnknownUser is returned for user ids without a balance row.
	ErrUnknownUser = errors.New("ledger: unknown user")
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

// Entry is one append-only balance movement. Entries are never updated or
// deleted; corrections are opposite-direction entries.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Direction   Direction `json:"direction"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DebitInTx locks the user's balance row, verifies funds, decrements the
// balance and appends a debit entry. Runs inside the caller's transaction so
// the settlement it belongs to commits or rolls back as one unit.
func DebitInTx(ctx context.Context, q rowQuerier, userID uuid.UUID, amountCents int64, reason string) error {
	if amountCents <= 0 {
		return ErrInvalidAmount
	}
	balance, err := lockBalance(ctx, q, userID)
	if err != nil {
		return err
	}
	if balance < amountCents {
		return ErrInsufficientBalance
	}
	return move(ctx, q, userID, -amountCents, amountCents, Debit, reason)
}

// CreditInTx locks the user's balance row, increments the balance and
// appends a credit entry inside the caller's transaction.
func CreditInTx(ctx context.Context, q rowQuerier, userID uuid.UUID, amountCents int64, reason string) error {
	if amountCents <= 0 {
		return ErrInvalidAmount
	}
	if _, err := lockBalance(ctx, q, userID); err != nil {
		return err
	}
	return move(ctx, q, userID, amountCents, amountCents, Credit, reason)
}

func lockBalance(ctx context.Context, q rowQuerier, userID uuid.UUID) (int64, error) {
	var balance int64
	query := `SELECT prepaid_balance_cents FROM users WHERE id = $1 FOR UPDATE`
	if err := q.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUnknownUser
		}
		return 0, fmt.Errorf("ledger: lock balance: %w", err)
	}
	return balance, nil
}

func move(ctx context.Context, q rowQuerier, userID uuid.UUID, delta, amountCents int64, dir Direction, reason string) error {
	update := `UPDATE users SET prepaid_balance_cents = prepaid_balance_cents + $2, updated_at = now() WHERE id = $1`
	if _, err := q.Exec(ctx, update, userID, delta); err != nil {
		return fmt.Errorf("ledger: update balance: %w", err)
	}
	insert := `
		INSERT INTO prepaid_ledger_entries (id, user_id, amount_cents, direction, reason)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := q.Exec(ctx, insert, uuid.New(), userID, amountCents, dir, reason); err != nil {
		return fmt.Errorf("ledger: append entry: %w", err)
	}
	return nil
}
