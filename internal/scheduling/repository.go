package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPaymentSettled is returned when a plain cancellation races a settlement;
// the caller must go through the refund path instead.
var ErrPaymentSettled = errors.New("scheduling: payment already settled")

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointments and drives their lifecycle transitions.
// Every state change runs inside a transaction holding the appointment row
// lock, so no two transitions for the same appointment are in flight at once.
// When a transaction touches both tables it locks the payment row first and
// the appointment row second, the same order the payments repository uses.
type Repository struct {
	pool db
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithDB(d db) *Repository {
	if d == nil {
		panic("scheduling: db required")
	}
	return &Repository{pool: d}
}

// CreateWithPayment inserts the appointment and its zero-amount pending
// payment in one transaction. The partial unique index on active slots turns
// a concurrent double-booking into ErrSlotTaken.
func (r *Repository) CreateWithPayment(ctx context.Context, appt *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin booking: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertAppt := `
		INSERT INTO appointments (id, practitioner_id, patient_id, start_at, end_at, status, symptoms)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, insertAppt,
		appt.ID, appt.PractitionerID, appt.PatientID, appt.StartAt, appt.EndAt, appt.Symptoms,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "appointments_active_slot") {
			return ErrSlotTaken
		}
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	appt.Status = StatusPending

	insertPayment := `
		INSERT INTO payments (id, appointment_id, method, status)
		VALUES ($1, $2, 'bank_transfer', 'pending')
	`
	if _, err := tx.Exec(ctx, insertPayment, uuid.New(), appt.ID); err != nil {
		return fmt.Errorf("scheduling: insert payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit booking: %w", err)
	}
	return nil
}

// BookedStarts lists start times of non-cancelled appointments in [from, to).
// Rejected appointments still count: their slot is not reopened silently.
func (r *Repository) BookedStarts(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	query := `
		SELECT start_at
		FROM appointments
		WHERE practitioner_id = $1 AND start_at >= $2 AND start_at < $3 AND status <> 'cancelled'
		ORDER BY start_at
	`
	rows, err := r.pool.Query(ctx, query, practitionerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("scheduling: booked starts: %w", err)
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var st time.Time
		if err := rows.Scan(&st); err != nil {
			return nil, fmt.Errorf("scheduling: scan start: %w", err)
		}
		starts = append(starts, st)
	}
	return starts, rows.Err()
}

// GetWithPayment loads an appointment together with its payment row.
func (r *Repository) GetWithPayment(ctx context.Context, id uuid.UUID) (*Appointment, *PaymentSummary, error) {
	query := `
		SELECT a.id, a.practitioner_id, a.patient_id, a.start_at, a.end_at, a.status,
		       a.symptoms, a.meeting_link, a.created_at, a.updated_at,
		       p.id, p.amount_cents, p.method, p.status, p.confirmed_at, COALESCE(p.external_key, '')
		FROM appointments a
		JOIN payments p ON p.appointment_id = a.id
		WHERE a.id = $1
	`
	var (
		appt Appointment
		pay  PaymentSummary
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&appt.ID, &appt.PractitionerID, &appt.PatientID, &appt.StartAt, &appt.EndAt, &appt.Status,
		&appt.Symptoms, &appt.MeetingLink, &appt.CreatedAt, &appt.UpdatedAt,
		&pay.ID, &pay.AmountCents, &pay.Method, &pay.Status, &pay.ConfirmedAt, &pay.ExternalKey,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("scheduling: load appointment: %w", err)
	}
	return &appt, &pay, nil
}

// ListByPatient returns a patient's appointments, newest first.
func (r *Repository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	query := `
		SELECT id, practitioner_id, patient_id, start_at, end_at, status,
		       symptoms, meeting_link, created_at, updated_at
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_at DESC
	`
	rows, err := r.pool.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list by patient: %w", err)
	}
	defer rows.Close()

	var appts []*Appointment
	for rows.Next() {
		var a Appointment
		err := rows.Scan(
			&a.ID, &a.PractitionerID, &a.PatientID, &a.StartAt, &a.EndAt, &a.Status,
			&a.Symptoms, &a.MeetingLink, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		appts = append(appts, &a)
	}
	return appts, rows.Err()
}

// SetFee prices a pending appointment. Both rows are locked for the duration
// so a settlement cannot slip in between check and update.
func (r *Repository) SetFee(ctx context.Context, id uuid.UUID, amountCents int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin set fee: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	payStatus, err := lockPaymentStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	status, err := lockStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if status != StatusPending {
		return ErrInvalidTransition
	}
	if payStatus != "pending" {
		return ErrPaymentSettled
	}

	update := `UPDATE payments SET amount_cents = $2, updated_at = now() WHERE appointment_id = $1`
	if _, err := tx.Exec(ctx, update, id, amountCents); err != nil {
		return fmt.Errorf("scheduling: update fee: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit set fee: %w", err)
	}
	return nil
}

// Complete moves a confirmed appointment to completed.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, StatusConfirmed, StatusCompleted)
}

// Reject marks a pending appointment rejected. The payment stays pending;
// nothing was ever charged.
func (r *Repository) Reject(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, StatusPending, StatusRejected)
}

// CancelUnpaid cancels an appointment whose payment never settled and marks
// the payment canceled. Settled payments are refused with ErrPaymentSettled
// so the caller routes through the refund path.
func (r *Repository) CancelUnpaid(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin cancel: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	payStatus, err := lockPaymentStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	status, err := lockStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if !CanTransition(status, StatusCancelled) {
		return ErrInvalidTransition
	}
	if payStatus == "completed" {
		return ErrPaymentSettled
	}

	updatePayment := `UPDATE payments SET status = 'canceled', updated_at = now() WHERE appointment_id = $1`
	if _, err := tx.Exec(ctx, updatePayment, id); err != nil {
		return fmt.Errorf("scheduling: cancel payment: %w", err)
	}
	updateAppt := `UPDATE appointments SET status = 'cancelled', updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, updateAppt, id); err != nil {
		return fmt.Errorf("scheduling: cancel appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit cancel: %w", err)
	}
	return nil
}

func (r *Repository) transition(ctx context.Context, id uuid.UUID, from, to Status) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status, err := lockStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if status != from || !CanTransition(status, to) {
		return ErrInvalidTransition
	}

	update := `UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, update, id, to); err != nil {
		return fmt.Errorf("scheduling: update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit transition: %w", err)
	}
	return nil
}

func lockPaymentStatus(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID) (string, error) {
	var status string
	query := `SELECT status FROM payments WHERE appointment_id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, query, appointmentID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("scheduling: lock payment: %w", err)
	}
	return status, nil
}

func lockStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Status, error) {
	var status Status
	query := `SELECT status FROM appointments WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, query, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("scheduling: lock appointment: %w", err)
	}
	return status, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}
