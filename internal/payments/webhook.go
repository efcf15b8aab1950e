package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// WebhookHandler receives the gateway's server-to-server payment events.
// The event only names the order; the amount and external key still come
// from a verify call back to the gateway, so a forged body cannot settle a
// payment for the wrong amount.
type WebhookHandler struct {
	service   *Service
	secretKey string
	logger    *logging.Logger
}

// NewWebhookHandler creates the gateway webhook handler.
func NewWebhookHandler(service *Service, secretKey string, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{service: service, secretKey: secretKey, logger: logger}
}

type gatewayEvent struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
	Proof   string `json:"proof"`
}

// HandleGatewayEvent processes a payment event. Always answers 200 for
// events it chooses to ignore so the gateway stops retrying them.
func (h *WebhookHandler) HandleGatewayEvent(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	if !h.verifySignature(payload, r.Header.Get("X-Gateway-Signature")) {
		h.logger.Warn("webhook signature rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var evt gatewayEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if evt.Type != "payment.approved" {
		h.logger.Info("webhook event ignored", "type", evt.Type)
		w.WriteHeader(http.StatusOK)
		return
	}
	orderID, err := uuid.Parse(evt.OrderID)
	if err != nil {
		http.Error(w, "invalid order_id", http.StatusBadRequest)
		return
	}

	if _, err := h.service.ConfirmExternal(r.Context(), orderID, MethodGatewayCard, evt.Proof); err != nil {
		var gwErr *GatewayError
		// Transport failures deserve a retry from the gateway; everything
		// else is a terminal disposition for this event.
		if errors.As(err, &gwErr) && gwErr.Kind == GatewayTimeout {
			http.Error(w, "gateway unavailable", http.StatusServiceUnavailable)
			return
		}
		h.logger.Warn("webhook settlement rejected", "order_id", orderID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) verifySignature(body []byte, header string) bool {
	if h.secretKey == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header), []byte(expected))
}
