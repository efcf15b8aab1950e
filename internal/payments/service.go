package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hanyusok/calldoc-reservation-sub000/internal/observability/metrics"
	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// Store is the persistence surface the service needs. *Repository satisfies it.
type Store interface {
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	SettlePrepaid(ctx context.Context, appointmentID, patientID uuid.UUID) (*SettleResult, error)
	SettleExternalByOrder(ctx context.Context, orderID uuid.UUID, method Method, amountCents int64, externalKey string) (*SettleResult, bool, error)
	RefundPrepaid(ctx context.Context, appointmentID uuid.UUID, reason string) error
	MarkRefunded(ctx context.Context, appointmentID uuid.UUID) error
	SetMeetingLink(ctx context.Context, appointmentID uuid.UUID, link string) error
}

// RoomProvider creates video consult rooms. Implemented by the meeting
// client; failures downgrade to an appointment without a link.
type RoomProvider interface {
	CreateRoom(ctx context.Context, appointmentID uuid.UUID) (string, error)
}

// Notifier delivers best-effort notifications, same contract the scheduling
// service uses.
type Notifier interface {
	NotifyOperators(ctx context.Context, templateKey string, payload map[string]any, link string)
}

// Service settles payments against the prepaid balance or the card gateway
// and reverses them on cancellation. It never reads appointment state
// through the scheduling package; all cross-table effects happen inside the
// repository's transactions.
type Service struct {
	repo           Store
	gateway        Gateway
	gatewayTimeout time.Duration
	velocity       *VelocityChecker
	locker         *OrderLocker
	rooms          RoomProvider
	notifier       Notifier
	metrics        *metrics.CoreMetrics
	logger         *logging.Logger
}

const defaultGatewayTimeout = 20 * time.Second

// NewService constructs a payments service.
func NewService(repo Store, gateway Gateway, logger *logging.Logger) *Service {
	if repo == nil {
		panic("payments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:           repo,
		gateway:        gateway,
		gatewayTimeout: defaultGatewayTimeout,
		logger:         logger,
	}
}

// WithGatewayTimeout bounds outbound gateway calls made on the refund path.
func (s *Service) WithGatewayTimeout(d time.Duration) *Service {
	if d > 0 {
		s.gatewayTimeout = d
	}
	return s
}

// WithVelocity wires the redis attempt limiter.
func (s *Service) WithVelocity(v *VelocityChecker) *Service {
	s.velocity = v
	return s
}

// WithLocker wires the redis confirm lock.
func (s *Service) WithLocker(l *OrderLocker) *Service {
	s.locker = l
	return s
}

// WithRooms wires the video room provider.
func (s *Service) WithRooms(r RoomProvider) *Service {
	s.rooms = r
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

// PayFromBalance settles an appointment's fee from the patient's prepaid
// balance. Only the appointment's own patient may settle; the ownership
// check runs inside the settlement transaction. The attempt counts against
// the velocity limit whether or not the debit succeeds.
func (s *Service) PayFromBalance(ctx context.Context, appointmentID, patientID uuid.UUID) (*Payment, error) {
	if s.velocity != nil {
		check, err := s.velocity.CheckSettle(ctx, patientID)
		if err == nil && !check.Allowed {
			s.metrics.ObserveSettlement(string(MethodPrepaid), "throttled")
			return nil, ErrTooManyAttempts
		}
	}

	result, err := s.repo.SettlePrepaid(ctx, appointmentID, patientID)
	if err != nil {
		s.metrics.ObserveSettlement(string(MethodPrepaid), "failed")
		return nil, err
	}

	s.metrics.ObserveSettlement(string(MethodPrepaid), "completed")
	s.logger.Info("prepaid settlement completed",
		"appointment_id", result.AppointmentID,
		"patient_id", result.PatientID,
		"amount_cents", result.AmountCents,
	)
	s.afterSettle(ctx, result)

	return s.repo.GetByAppointment(ctx, appointmentID)
}

// ConfirmExternal verifies a gateway approval and records the settlement.
// Safe to call twice for the same order: the second confirm finds the
// payment completed and reports success without touching anything.
func (s *Service) ConfirmExternal(ctx context.Context, orderID uuid.UUID, method Method, proof string) (*Payment, error) {
	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, orderID)
		if err != nil {
			s.logger.Error("confirm lock unavailable", "order_id", orderID, "error", err)
		} else if !ok {
			// Another confirm is in flight; the settlement transaction's
			// row lock still protects correctness, so just wait it out.
			return nil, ErrTooManyAttempts
		} else {
			defer release()
		}
	}

	conf, err := s.gateway.Confirm(ctx, orderID, proof)
	if err != nil {
		s.metrics.ObserveSettlement(string(method), "gateway_failed")
		return nil, err
	}

	result, settled, err := s.repo.SettleExternalByOrder(ctx, orderID, method, conf.AmountCents, conf.ExternalKey)
	if err != nil {
		s.metrics.ObserveSettlement(string(method), "failed")
		return nil, err
	}
	if settled {
		s.metrics.ObserveSettlement(string(method), "completed")
		s.logger.Info("external settlement completed",
			"order_id", orderID,
			"appointment_id", result.AppointmentID,
			"amount_cents", result.AmountCents,
			"method", method,
		)
		s.afterSettle(ctx, result)
	} else {
		s.logger.Info("external settlement replayed", "order_id", orderID)
	}

	payment, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Refund reverses a settled payment and cancels its appointment. Prepaid
// settlements credit the balance back locally; gateway settlements void the
// charge remotely first and leave everything untouched if the gateway call
// fails.
func (s *Service) Refund(ctx context.Context, appointmentID uuid.UUID, reason string) error {
	payment, err := s.repo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}

	switch payment.Method {
	case MethodPrepaid:
		if err := s.repo.RefundPrepaid(ctx, appointmentID, reason); err != nil {
			s.metrics.ObserveSettlement(string(payment.Method), "refund_failed")
			return err
		}
	case MethodGatewayCard, MethodGatewayRedirect:
		gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		err := s.gateway.Cancel(gwCtx, payment.ExternalKey, reason)
		cancel()
		if err != nil {
			s.metrics.ObserveSettlement(string(payment.Method), "refund_failed")
			s.logger.Error("gateway refund failed, local state untouched",
				"appointment_id", appointmentID,
				"external_key", payment.ExternalKey,
				"error", err,
			)
			return err
		}
		if err := s.repo.MarkRefunded(ctx, appointmentID); err != nil {
			return err
		}
	default:
		// Bank transfers are reconciled by hand; record the reversal only.
		if err := s.repo.MarkRefunded(ctx, appointmentID); err != nil {
			return err
		}
	}

	s.metrics.ObserveSettlement(string(payment.Method), "refunded")
	s.logger.Info("payment refunded",
		"appointment_id", appointmentID,
		"method", payment.Method,
		"amount_cents", payment.AmountCents,
		"reason", reason,
	)
	return nil
}

// afterSettle runs the best-effort side effects of a settlement. None of
// them can fail the payment; the money has already moved.
func (s *Service) afterSettle(ctx context.Context, result *SettleResult) {
	if s.rooms != nil {
		link, err := s.rooms.CreateRoom(ctx, result.AppointmentID)
		if err != nil {
			s.logger.Warn("meeting room creation failed", "appointment_id", result.AppointmentID, "error", err)
		} else if link != "" {
			if err := s.repo.SetMeetingLink(ctx, result.AppointmentID, link); err != nil {
				s.logger.Warn("meeting link not stored", "appointment_id", result.AppointmentID, "error", err)
			}
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyOperators(ctx, "payment.completed", map[string]any{
			"appointment_id": result.AppointmentID.String(),
			"amount_cents":   result.AmountCents,
		}, "")
	}
}
