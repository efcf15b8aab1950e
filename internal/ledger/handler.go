package ledger

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hanyusok/calldoc-reservation-sub000/internal/identity"
	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// Handler exposes the prepaid balance over HTTP.
type Handler struct {
	repo   *Repository
	logger *logging.Logger
}

// NewHandler creates the ledger HTTP handler.
func NewHandler(repo *Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

type balanceResponse struct {
	BalanceCents int64 `json:"balance_cents"`
}

// Balance returns the caller's prepaid balance. GET /api/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	balance, err := h.repo.Balance(r.Context(), ident.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{BalanceCents: balance})
}

type topUpRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

// TopUp credits the caller's prepaid balance. POST /api/balance/topup.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "balance top-up"
	}
	if err := h.repo.TopUp(r.Context(), ident.UserID, req.AmountCents, req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	balance, err := h.repo.Balance(r.Context(), ident.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{BalanceCents: balance})
}

// Entries lists the caller's ledger history. GET /api/balance/entries.
func (h *Handler) Entries(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	entries, err := h.repo.Entries(r.Context(), ident.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		http.Error(w, "amount must be positive", http.StatusBadRequest)
	case errors.Is(err, ErrUnknownUser):
		http.Error(w, "unknown user", http.StatusNotFound)
	default:
		h.logger.Error("ledger request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
