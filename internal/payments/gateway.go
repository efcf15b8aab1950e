package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// Gateway is the external card gateway surface the settlement service
// depends on. Implemented by GatewayClient in production and by fakes in
// tests.
type Gateway interface {
	Confirm(ctx context.Context, orderID uuid.UUID, proof string) (*GatewayConfirmation, error)
	Cancel(ctx context.Context, externalKey, reason string) error
}

// GatewayConfirmation is the gateway's view of a settled order.
type GatewayConfirmation struct {
	AmountCents int64
	ExternalKey string
	ConfirmedAt time.Time
}

// GatewayClient talks to the card gateway's REST API.
type GatewayClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewGatewayClient creates a gateway client. The secret key authenticates
// server-to-server calls.
func NewGatewayClient(baseURL, secretKey string, logger *logging.Logger) *GatewayClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &GatewayClient{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// WithTimeout overrides the default request timeout.
func (c *GatewayClient) WithTimeout(d time.Duration) *GatewayClient {
	if d > 0 {
		c.httpClient.Timeout = d
	}
	return c
}

// Confirm verifies a client-side approval with the gateway and captures the
// charge. The proof token comes from the redirect back to the client.
func (c *GatewayClient) Confirm(ctx context.Context, orderID uuid.UUID, proof string) (*GatewayConfirmation, error) {
	body := map[string]any{
		"order_id":        orderID.String(),
		"proof":           proof,
		"idempotency_key": fmt.Sprintf("confirm-%s", orderID),
	}

	respBody, err := c.post(ctx, "/v1/payments/confirm", body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		AmountCents int64     `json:"amount_cents"`
		ExternalKey string    `json:"external_key"`
		ApprovedAt  time.Time `json:"approved_at"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("payments: gateway confirm decode: %w", err)
	}
	if parsed.ExternalKey == "" {
		return nil, &GatewayError{Kind: GatewayDeclined, Message: "missing external key in confirmation"}
	}
	return &GatewayConfirmation{
		AmountCents: parsed.AmountCents,
		ExternalKey: parsed.ExternalKey,
		ConfirmedAt: parsed.ApprovedAt,
	}, nil
}

// Cancel voids a captured charge at the gateway. Callers must treat any
// returned error as "money may still be captured" and leave local state
// untouched.
func (c *GatewayClient) Cancel(ctx context.Context, externalKey, reason string) error {
	body := map[string]any{
		"external_key":    externalKey,
		"idempotency_key": fmt.Sprintf("cancel-%s", externalKey),
	}
	if reason != "" {
		body["reason"] = reason
	}
	_, err := c.post(ctx, "/v1/payments/cancel", body)
	return err
}

func (c *GatewayClient) post(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("payments: gateway marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("payments: gateway request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Kind: GatewayTimeout, Message: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("gateway call failed",
			"path", path,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &GatewayError{
				Kind:    GatewayTimeout,
				Message: fmt.Sprintf("status %d", resp.StatusCode),
			}
		}
		return nil, &GatewayError{
			Kind:    GatewayDeclined,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody)),
		}
	}
	return respBody, nil
}
