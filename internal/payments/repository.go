package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanyusok/calldoc-reservation-sub000/internal/ledger"
)

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository settles and refunds payments. Every settlement runs inside a
// transaction that holds both the payment and appointment row locks, and any
// prepaid balance move rides in the same transaction. Lock order is always
// payment row first, then appointment row; the scheduling repository takes
// its locks in the same order.
type Repository struct {
	pool db
}

// NewRepository creates a payments repository backed by the shared pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("payments: pool is required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithDB(d db) *Repository {
	return &Repository{pool: d}
}

// SettleResult reports what a successful settlement touched.
type SettleResult struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	AmountCents   int64
}

// GetByAppointment returns the payment attached to an appointment.
func (r *Repository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	query := `
		SELECT id, appointment_id, amount_cents, method, status, confirmed_at, COALESCE(external_key, ''), created_at, updated_at
		FROM payments
		WHERE appointment_id = $1`
	return r.scanPayment(r.pool.QueryRow(ctx, query, appointmentID))
}

// GetByID returns a payment by its own id, which doubles as the order id
// handed to the card gateway.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	query := `
		SELECT id, appointment_id, amount_cents, method, status, confirmed_at, COALESCE(external_key, ''), created_at, updated_at
		FROM payments
		WHERE id = $1`
	return r.scanPayment(r.pool.QueryRow(ctx, query, id))
}

func (r *Repository) scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.AppointmentID, &p.AmountCents, &p.Method, &p.Status,
		&p.ConfirmedAt, &p.ExternalKey, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: get payment: %w", err)
	}
	return &p, nil
}

// SettlePrepaid debits the patient's prepaid balance for the full fee and
// confirms the appointment, all in one transaction. The caller must be the
// appointment's patient; the check runs under the row locks so it cannot be
// raced. An already completed payment returns ErrAlreadySettled; callers
// treat that as a lost race, not a double charge.
func (r *Repository) SettlePrepaid(ctx context.Context, appointmentID, patientID uuid.UUID) (*SettleResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("payments: begin settle: %w", err)
	}
	defer tx.Rollback(ctx)

	paymentID, amount, status, err := r.lockPayment(ctx, tx, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := settleableStatus(status); err != nil {
		return nil, err
	}

	ownerID, err := r.lockPendingAppointment(ctx, tx, appointmentID)
	if err != nil {
		return nil, err
	}
	if ownerID != patientID {
		return nil, ErrNotOwner
	}
	if amount <= 0 {
		return nil, ErrFeeNotSet
	}

	reason := fmt.Sprintf("appointment %s settlement", appointmentID)
	if err := ledger.DebitInTx(ctx, tx, patientID, amount, reason); err != nil {
		return nil, err
	}

	update := `
		UPDATE payments
		SET status = $2, method = $3, confirmed_at = now(), updated_at = now()
		WHERE id = $1`
	if _, err := tx.Exec(ctx, update, paymentID, StatusCompleted, MethodPrepaid); err != nil {
		return nil, fmt.Errorf("payments: complete payment: %w", err)
	}
	if err := r.confirmAppointment(ctx, tx, appointmentID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("payments: commit settle: %w", err)
	}
	return &SettleResult{AppointmentID: appointmentID, PatientID: patientID, AmountCents: amount}, nil
}

// SettleExternalByOrder records a gateway-confirmed charge. Replays are
// absorbed: a payment that already completed returns (nil, false, nil) so
// webhook retries and double redirects stay harmless.
func (r *Repository) SettleExternalByOrder(ctx context.Context, orderID uuid.UUID, method Method, amountCents int64, externalKey string) (*SettleResult, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("payments: begin settle: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		appointmentID uuid.UUID
		amount        int64
		status        Status
	)
	lock := `
		SELECT appointment_id, amount_cents, status
		FROM payments
		WHERE id = $1
		FOR UPDATE`
	if err := tx.QueryRow(ctx, lock, orderID).Scan(&appointmentID, &amount, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("payments: lock payment: %w", err)
	}
	if status == StatusCompleted {
		return nil, false, nil
	}
	if status != StatusPending {
		return nil, false, ErrNotPayable
	}

	patientID, err := r.lockPendingAppointment(ctx, tx, appointmentID)
	if err != nil {
		return nil, false, err
	}
	if amount <= 0 {
		return nil, false, ErrFeeNotSet
	}
	if amountCents != amount {
		return nil, false, ErrAmountMismatch
	}

	update := `
		UPDATE payments
		SET status = $2, method = $3, external_key = $4, confirmed_at = now(), updated_at = now()
		WHERE id = $1`
	if _, err := tx.Exec(ctx, update, orderID, StatusCompleted, method, externalKey); err != nil {
		return nil, false, fmt.Errorf("payments: complete payment: %w", err)
	}
	if err := r.confirmAppointment(ctx, tx, appointmentID); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("payments: commit settle: %w", err)
	}
	return &SettleResult{AppointmentID: appointmentID, PatientID: patientID, AmountCents: amount}, true, nil
}

// RefundPrepaid reverses a prepaid settlement. The balance credit, the
// payment flip and the appointment cancellation commit together.
func (r *Repository) RefundPrepaid(ctx context.Context, appointmentID uuid.UUID, reason string) error {
	return r.refund(ctx, appointmentID, func(ctx context.Context, tx pgx.Tx, patientID uuid.UUID, amount int64) error {
		return ledger.CreditInTx(ctx, tx, patientID, amount, reason)
	})
}

// MarkRefunded flips a completed payment to refunded and cancels the
// appointment. Used after the gateway has confirmed the money is on its way
// back; no local balance moves.
func (r *Repository) MarkRefunded(ctx context.Context, appointmentID uuid.UUID) error {
	return r.refund(ctx, appointmentID, nil)
}

func (r *Repository) refund(ctx context.Context, appointmentID uuid.UUID, credit func(context.Context, pgx.Tx, uuid.UUID, int64) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("payments: begin refund: %w", err)
	}
	defer tx.Rollback(ctx)

	paymentID, amount, status, err := r.lockPayment(ctx, tx, appointmentID)
	if err != nil {
		return err
	}
	if status != StatusCompleted {
		return ErrNotPayable
	}

	var (
		patientID  uuid.UUID
		apptStatus string
	)
	lock := `SELECT patient_id, status FROM appointments WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, lock, appointmentID).Scan(&patientID, &apptStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("payments: lock appointment: %w", err)
	}
	// Re-check under the lock: a Complete that committed after the caller's
	// read must not be flipped back to cancelled.
	if apptStatus != "pending" && apptStatus != "confirmed" {
		return ErrNotPayable
	}

	if credit != nil {
		if err := credit(ctx, tx, patientID, amount); err != nil {
			return err
		}
	}

	update := `UPDATE payments SET status = $2, updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, update, paymentID, StatusRefunded); err != nil {
		return fmt.Errorf("payments: refund payment: %w", err)
	}
	cancel := `UPDATE appointments SET status = 'cancelled', updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, cancel, appointmentID); err != nil {
		return fmt.Errorf("payments: cancel appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("payments: commit refund: %w", err)
	}
	return nil
}

// SetMeetingLink stores the video consult URL on a confirmed appointment.
func (r *Repository) SetMeetingLink(ctx context.Context, appointmentID uuid.UUID, link string) error {
	query := `UPDATE appointments SET meeting_link = $2, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, appointmentID, link)
	if err != nil {
		return fmt.Errorf("payments: set meeting link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) confirmAppointment(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID) error {
	update := `UPDATE appointments SET status = 'confirmed', updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, update, appointmentID); err != nil {
		return fmt.Errorf("payments: confirm appointment: %w", err)
	}
	return nil
}

func (r *Repository) lockPayment(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID) (uuid.UUID, int64, Status, error) {
	var (
		paymentID uuid.UUID
		amount    int64
		status    Status
	)
	lock := `
		SELECT id, amount_cents, status
		FROM payments
		WHERE appointment_id = $1
		FOR UPDATE`
	if err := tx.QueryRow(ctx, lock, appointmentID).Scan(&paymentID, &amount, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, 0, "", ErrNotFound
		}
		return uuid.Nil, 0, "", fmt.Errorf("payments: lock payment: %w", err)
	}
	return paymentID, amount, status, nil
}

func (r *Repository) lockPendingAppointment(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID) (uuid.UUID, error) {
	var (
		patientID uuid.UUID
		status    string
	)
	lock := `SELECT patient_id, status FROM appointments WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, lock, appointmentID).Scan(&patientID, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("payments: lock appointment: %w", err)
	}
	if status != "pending" {
		return uuid.Nil, ErrNotPayable
	}
	return patientID, nil
}

func settleableStatus(s Status) error {
	switch s {
	case StatusPending:
		return nil
	case StatusCompleted:
		return ErrAlreadySettled
	default:
		return ErrNotPayable
	}
}
