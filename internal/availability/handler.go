package availability

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// Handler exposes slot queries and schedule maintenance over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates the availability HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type slotsResponse struct {
	Date  string      `json:"date"`
	Slots []ClockTime `json:"slots"`
}

// Slots lists the bookable slots for a date. GET /api/slots?date=2026-09-01.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	day, err := parseDateParam(r, "date")
	if err != nil {
		http.Error(w, "invalid or missing date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	slots, err := h.service.AvailableSlots(r.Context(), day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if slots == nil {
		slots = []ClockTime{}
	}
	writeJSON(w, http.StatusOK, slotsResponse{Date: day.Format("2006-01-02"), Slots: slots})
}

// SetWeeklyTemplate replaces the practitioner's weekly schedule.
// PUT /api/schedule/template.
func (h *Handler) SetWeeklyTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl WeeklyTemplate
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := h.service.SetWeeklyTemplate(r.Context(), tpl); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type overrideRequest struct {
	Date     string      `json:"date"`
	IsDayOff bool        `json:"is_day_off"`
	Slots    []ClockTime `json:"slots"`
}

// SetDateOverride pins a single date to a day off or an explicit slot list.
// PUT /api/schedule/overrides.
func (h *Handler) SetDateOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if err := h.service.SetDateOverride(r.Context(), day, req.IsDayOff, req.Slots); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearDateOverride removes a date override so the weekly template applies
// again. DELETE /api/schedule/overrides?date=2026-09-01.
func (h *Handler) ClearDateOverride(w http.ResponseWriter, r *http.Request) {
	day, err := parseDateParam(r, "date")
	if err != nil {
		http.Error(w, "invalid or missing date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if err := h.service.ClearDateOverride(r.Context(), day); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.logger.Error("availability request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	return time.Parse("2006-01-02", r.URL.Query().Get(name))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
