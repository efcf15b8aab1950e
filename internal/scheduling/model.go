package scheduling

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// SlotDuration is the fixed length of every appointment.
const SlotDuration = 30 * time.Minute

var (
	// ErrSlotTaken is returned when another booking already holds the slot.
	// The caller should re-fetch available slots and pick again.
	ErrSlotTaken = errors.New("scheduling: slot already taken")
	// ErrSlotInvalid is returned for a slot the availability engine does not
	// currently offer for the requested date.
	ErrSlotInvalid = errors.New("scheduling: slot not bookable")
	// ErrPastDate is returned for booking attempts in the past.
	ErrPastDate = errors.New("scheduling: date in the past")
	// ErrNotFound is returned for unknown appointment ids.
	ErrNotFound = errors.New("scheduling: appointment not found")
	// ErrInvalidTransition is returned for lifecycle moves the state machine
	// does not allow, including any move out of a terminal state.
	ErrInvalidTransition = errors.New("scheduling: invalid status transition")
	// ErrFeeNotSet is returned when settlement is attempted before an
	// operator has priced the appointment.
	ErrFeeNotSet = errors.New("scheduling: fee not set")
)

// Appointment is a booked consultation slot.
type Appointment struct {
	ID             uuid.UUID `json:"id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	Status         Status    `json:"status"`
	Symptoms       string    `json:"symptoms,omitempty"`
	MeetingLink    string    `json:"meeting_link,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PaymentSummary is the slice of the payment row the lifecycle needs.
type PaymentSummary struct {
	ID          uuid.UUID  `json:"id"`
	AmountCents int64      `json:"amount_cents"`
	Method      string     `json:"method"`
	Status      string     `json:"status"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ExternalKey string     `json:"external_key,omitempty"`
}
