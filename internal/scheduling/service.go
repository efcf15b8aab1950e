package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hanyusok/calldoc-reservation-sub000/internal/availability"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/observability/metrics"
	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// Store is the persistence surface the service needs. *Repository satisfies it.
type Store interface {
	CreateWithPayment(ctx context.Context, appt *Appointment) error
	GetWithPayment(ctx context.Context, id uuid.UUID) (*Appointment, *PaymentSummary, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	SetFee(ctx context.Context, id uuid.UUID, amountCents int64) error
	Complete(ctx context.Context, id uuid.UUID) error
	Reject(ctx context.Context, id uuid.UUID) error
	CancelUnpaid(ctx context.Context, id uuid.UUID) error
}

// SlotSource produces the currently bookable slots for a date. Implemented
// by the availability service.
type SlotSource interface {
	AvailableSlots(ctx context.Context, day time.Time) ([]availability.ClockTime, error)
}

// Refunder reverses a settled payment and cancels the appointment with it.
// Implemented by the payments service.
type Refunder interface {
	Refund(ctx context.Context, appointmentID uuid.UUID, reason string) error
}

// Notifier delivers best-effort notifications. Failures never propagate into
// booking or lifecycle outcomes.
type Notifier interface {
	NotifyOperators(ctx context.Context, templateKey string, payload map[string]any, link string)
}

// Service owns the booking transaction and the appointment lifecycle.
type Service struct {
	repo     Store
	slots    SlotSource
	refunder Refunder
	notifier Notifier
	metrics  *metrics.CoreMetrics
	logger   *logging.Logger

	practitionerID uuid.UUID
	loc            *time.Location
	now            func() time.Time
}

// NewService constructs a scheduling service.
func NewService(repo Store, slots SlotSource, practitionerID uuid.UUID, loc *time.Location, logger *logging.Logger) *Service {
	if repo == nil {
		panic("scheduling: repository required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:           repo,
		slots:          slots,
		logger:         logger,
		practitionerID: practitionerID,
		loc:            loc,
		now:            time.Now,
	}
}

// WithRefunder wires the payments service for cancel-with-refund.
func (s *Service) WithRefunder(r Refunder) *Service {
	s.refunder = r
	return s
}

// WithNotifier wires the notification sink.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithMetrics wires prometheus collectors.
func (s *Service) WithMetrics(m *metrics.CoreMetrics) *Service {
	s.metrics = m
	return s
}

// WithClock overrides the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Book reserves a slot for a patient. The availability check is advisory;
// the repository's unique constraint is what actually decides a race.
func (s *Service) Book(ctx context.Context, patientID uuid.UUID, day time.Time, slot availability.ClockTime, symptoms string) (*Appointment, error) {
	startAt := slot.At(day, s.loc)
	if startAt.Before(s.now()) {
		return nil, ErrPastDate
	}

	if s.slots != nil {
		offered, err := s.slots.AvailableSlots(ctx, day)
		if err != nil {
			return nil, err
		}
		if !containsSlot(offered, slot) {
			return nil, ErrSlotInvalid
		}
	}

	appt := &Appointment{
		ID:             uuid.New(),
		PractitionerID: s.practitionerID,
		PatientID:      patientID,
		StartAt:        startAt,
		EndAt:          startAt.Add(SlotDuration),
		Symptoms:       symptoms,
	}
	if err := s.repo.CreateWithPayment(ctx, appt); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.ObserveBooking("conflict")
		}
		return nil, err
	}
	s.metrics.ObserveBooking("created")
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"patient_id", patientID,
		"start_at", startAt,
	)
	if s.notifier != nil {
		s.notifier.NotifyOperators(ctx, "booking.created", map[string]any{
			"appointment_id": appt.ID.String(),
			"patient_id":     patientID.String(),
			"start_at":       startAt.Format(time.RFC3339),
		}, "/appointments/"+appt.ID.String())
	}
	return appt, nil
}

// Get loads an appointment and its payment summary.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, *PaymentSummary, error) {
	return s.repo.GetWithPayment(ctx, id)
}

// ListForPatient returns the patient's appointments, newest first.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// SetFee prices a pending appointment. Settlement is refused until this has
// happened; a zero amount means "not priced yet".
func (s *Service) SetFee(ctx context.Context, id uuid.UUID, amountCents int64) error {
	if amountCents <= 0 {
		return ErrFeeNotSet
	}
	if err := s.repo.SetFee(ctx, id, amountCents); err != nil {
		return err
	}
	s.logger.Info("fee set", "appointment_id", id, "amount_cents", amountCents)
	return nil
}

// Cancel cancels an appointment. Settled payments are reversed through the
// refund path first; a gateway failure there leaves the appointment untouched.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	appt, pay, err := s.repo.GetWithPayment(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(appt.Status, StatusCancelled) {
		return ErrInvalidTransition
	}

	if pay.Status == "completed" {
		return s.refund(ctx, id, reason)
	}

	err = s.repo.CancelUnpaid(ctx, id)
	if errors.Is(err, ErrPaymentSettled) {
		// Settlement won the race between our read and the cancel lock.
		return s.refund(ctx, id, reason)
	}
	if err != nil {
		return err
	}
	s.metrics.ObserveTransition(string(StatusCancelled))
	s.logger.Info("appointment cancelled", "appointment_id", id, "reason", reason)
	return nil
}

func (s *Service) refund(ctx context.Context, id uuid.UUID, reason string) error {
	if s.refunder == nil {
		return errors.New("scheduling: no refunder configured for settled payment")
	}
	if err := s.refunder.Refund(ctx, id, reason); err != nil {
		return err
	}
	s.metrics.ObserveTransition(string(StatusCancelled))
	return nil
}

// Complete marks a confirmed appointment finished.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Complete(ctx, id); err != nil {
		return err
	}
	s.metrics.ObserveTransition(string(StatusCompleted))
	s.logger.Info("appointment completed", "appointment_id", id)
	return nil
}

// Reject refuses a pending appointment. The slot stays occupied and the
// payment stays pending; nothing was charged.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Reject(ctx, id); err != nil {
		return err
	}
	s.metrics.ObserveTransition(string(StatusRejected))
	s.logger.Info("appointment rejected", "appointment_id", id)
	return nil
}

func containsSlot(offered []availability.ClockTime, slot availability.ClockTime) bool {
	for _, o := range offered {
		if o == slot {
			return true
		}
	}
	return false
}
