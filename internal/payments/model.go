package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Method identifies the settlement rail a payment used.
type Method string

const (
	MethodBankTransfer Method = "bank_transfer"
	MethodPrepaid      Method = "prepaid"
	// MethodGatewayCard settles through the card gateway's server callback.
	MethodGatewayCard Method = "gateway_card"
	// MethodGatewayRedirect settles through the gateway's redirect-confirm flow.
	MethodGatewayRedirect Method = "gateway_redirect"
)

// Status is the payment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusRefunded  Status = "refunded"
)

var (
	// ErrNotFound is returned for unknown payment or appointment ids.
	ErrNotFound = errors.New("payments: payment not found")
	// ErrFeeNotSet is returned when settlement is attempted while the
	// amount is still zero; there is nothing to charge.
	ErrFeeNotSet = errors.New("payments: fee not set")
	// ErrAlreadySettled is returned when a prepaid debit hits a payment
	// that already completed. Gateway confirms treat the same condition as
	// an idempotent no-op instead.
	ErrAlreadySettled = errors.New("payments: already settled")
	// ErrNotPayable is returned when the appointment is no longer in a
	// state that accepts settlement or refund.
	ErrNotPayable = errors.New("payments: appointment not payable")
	// ErrAmountMismatch is returned when a gateway reports an amount that
	// differs from the priced fee.
	ErrAmountMismatch = errors.New("payments: settled amount does not match fee")
	// ErrNotOwner is returned when a prepaid settlement is attempted by a
	// patient who does not own the appointment.
	ErrNotOwner = errors.New("payments: caller does not own appointment")
	// ErrTooManyAttempts is returned when the velocity guard trips.
	ErrTooManyAttempts = errors.New("payments: too many settlement attempts")
)

// Payment is the 1:1 companion of an appointment.
type Payment struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	AmountCents   int64      `json:"amount_cents"`
	Method        Method     `json:"method"`
	Status        Status     `json:"status"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	ExternalKey   string     `json:"external_key,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// GatewayErrorKind distinguishes how a gateway call failed.
type GatewayErrorKind string

const (
	// GatewayTimeout covers timeouts and transport failures. Local state
	// is untouched and the call is safe to retry.
	GatewayTimeout GatewayErrorKind = "timeout"
	// GatewayDeclined covers explicit refusals from the gateway.
	GatewayDeclined GatewayErrorKind = "declined"
)

// GatewayError wraps a failed gateway call so callers can distinguish a
// retryable timeout from a hard decline.
type GatewayError struct {
	Kind    GatewayErrorKind
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payments: gateway %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("payments: gateway %s", e.Kind)
}

func (e *GatewayError) Unwrap() error { return e.Err }
