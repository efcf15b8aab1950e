// Package meeting provisions video consult rooms from the meeting provider.
package meeting

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

// Client creates rooms through the provider's REST API. It satisfies the
// payments service's RoomProvider interface.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a meeting client. Returns nil when no base URL is
// configured; callers treat a nil client as rooms disabled.
func NewClient(baseURL, apiKey string, logger *logging.Logger) *Client {
	if baseURL == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// CreateRoom provisions a room for an appointment and returns its join URL.
func (c *Client) CreateRoom(ctx context.Context, appointmentID uuid.UUID) (string, error) {
	body, err := json.Marshal(map[string]any{
		"name": fmt.Sprintf("consult-%s", appointmentID),
	})
	if err != nil {
		return "", fmt.Errorf("meeting: marshal room request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rooms", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("meeting: room request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("meeting: create room: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error("room creation failed", "status", resp.StatusCode, "body", string(respBody))
		return "", fmt.Errorf("meeting: provider status %d", resp.StatusCode)
	}

	var parsed struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("meeting: decode room response: %w", err)
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("meeting: provider returned no room url")
	}
	return parsed.URL, nil
}
