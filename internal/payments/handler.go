package payments

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hanyusok/calldoc-reservation-sub000/internal/identity"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/ledger"
	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// Handler exposes settlement over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates the payments HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type confirmRequest struct {
	OrderID string `json:"order_id"`
	Method  string `json:"method"`
	Proof   string `json:"proof"`
}

// PayFromBalance settles the appointment fee from the caller's prepaid
// balance. POST /api/appointments/{id}/pay.
func (h *Handler) PayFromBalance(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	payment, err := h.service.PayFromBalance(r.Context(), appointmentID, ident.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// ConfirmExternal records a gateway approval the client brought back from
// the redirect. POST /api/payments/confirm.
func (h *Handler) ConfirmExternal(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		http.Error(w, "invalid order_id", http.StatusBadRequest)
		return
	}
	method := Method(req.Method)
	if method != MethodGatewayCard && method != MethodGatewayRedirect {
		http.Error(w, "unsupported method", http.StatusBadRequest)
		return
	}

	payment, err := h.service.ConfirmExternal(r.Context(), orderID, method, req.Proof)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *GatewayError
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "payment not found", http.StatusNotFound)
	case errors.Is(err, ErrFeeNotSet):
		http.Error(w, "fee not set", http.StatusConflict)
	case errors.Is(err, ErrAlreadySettled):
		http.Error(w, "payment already settled", http.StatusConflict)
	case errors.Is(err, ErrNotPayable):
		http.Error(w, "appointment not payable", http.StatusConflict)
	case errors.Is(err, ErrAmountMismatch):
		http.Error(w, "amount mismatch", http.StatusConflict)
	case errors.Is(err, ErrNotOwner):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrTooManyAttempts):
		http.Error(w, "too many attempts", http.StatusTooManyRequests)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		http.Error(w, "insufficient balance", http.StatusPaymentRequired)
	case errors.Is(err, ledger.ErrUnknownUser):
		http.Error(w, "unknown user", http.StatusNotFound)
	case errors.As(err, &gwErr):
		if gwErr.Kind == GatewayDeclined {
			http.Error(w, "payment declined", http.StatusPaymentRequired)
		} else {
			http.Error(w, "gateway unavailable", http.StatusBadGateway)
		}
	default:
		h.logger.Error("payment request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
