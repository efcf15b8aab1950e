package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hanyusok/calldoc-reservation-sub000/internal/availability"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/identity"
	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// Handler exposes booking and the appointment lifecycle over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates the scheduling HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type bookRequest struct {
	Date     string `json:"date"`
	Slot     string `json:"slot"`
	Symptoms string `json:"symptoms"`
}

type appointmentResponse struct {
	Appointment *Appointment    `json:"appointment"`
	Payment     *PaymentSummary `json:"payment,omitempty"`
}

// Book reserves a slot for the authenticated patient.
// POST /api/appointments.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	slot, err := availability.ParseClock(req.Slot)
	if err != nil {
		http.Error(w, "invalid slot, want HH:MM", http.StatusBadRequest)
		return
	}

	appt, err := h.service.Book(r.Context(), ident.UserID, day, slot, req.Symptoms)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentResponse{Appointment: appt})
}

// Get returns one appointment with its payment state.
// GET /api/appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	appt, payment, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ident, ok := identity.FromContext(r.Context()); ok && ident.Role == identity.RolePatient && appt.PatientID != ident.UserID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse{Appointment: appt, Payment: payment})
}

// List returns the authenticated patient's appointments.
// GET /api/appointments.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	appts, err := h.service.ListForPatient(r.Context(), ident.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

type feeRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// SetFee prices a pending appointment. POST /api/appointments/{id}/fee.
func (h *Handler) SetFee(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	var req feeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := h.service.SetFee(r.Context(), id, req.AmountCents); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel cancels an appointment, refunding its payment if settled.
// POST /api/appointments/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	var req cancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if ident, ok := identity.FromContext(r.Context()); ok && ident.Role == identity.RolePatient {
		appt, _, err := h.service.Get(r.Context(), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if appt.PatientID != ident.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	if err := h.service.Cancel(r.Context(), id, req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Complete closes out a confirmed appointment after the consult.
// POST /api/appointments/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Complete)
}

// Reject declines a pending appointment. POST /api/appointments/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	if err := fn(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, ErrSlotTaken):
		http.Error(w, "slot already booked", http.StatusConflict)
	case errors.Is(err, ErrSlotInvalid):
		http.Error(w, "slot not offered on that date", http.StatusUnprocessableEntity)
	case errors.Is(err, ErrPastDate):
		http.Error(w, "slot is in the past", http.StatusUnprocessableEntity)
	case errors.Is(err, ErrFeeNotSet):
		http.Error(w, "fee must be positive", http.StatusUnprocessableEntity)
	case errors.Is(err, ErrInvalidTransition):
		http.Error(w, "invalid state for this operation", http.StatusConflict)
	case errors.Is(err, availability.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("scheduling request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
