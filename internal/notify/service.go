package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// Store is the persistence surface the service needs. *OutboxStore
// satisfies it.
type Store interface {
	Insert(ctx context.Context, userID uuid.UUID, templateKey string, payload any, link string) (uuid.UUID, error)
	OperatorIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Service fans desk events out to operator accounts through the outbox.
// Every method is best effort; a notification that cannot be queued is
// logged and dropped, never bubbled into the caller's outcome.
type Service struct {
	store  Store
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(store Store, logger *logging.Logger) *Service {
	if store == nil {
		panic("notify: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger}
}

// NotifyOperators queues one notification per operator account.
func (s *Service) NotifyOperators(ctx context.Context, templateKey string, payload map[string]any, link string) {
	operators, err := s.store.OperatorIDs(ctx)
	if err != nil {
		s.logger.Error("operator lookup failed", "error", err, "template", templateKey)
		return
	}
	if len(operators) == 0 {
		s.logger.Debug("no operator accounts to notify", "template", templateKey)
		return
	}
	for _, userID := range operators {
		if _, err := s.store.Insert(ctx, userID, templateKey, payload, link); err != nil {
			s.logger.Error("notification enqueue failed", "error", err, "template", templateKey, "user_id", userID)
		}
	}
}

// RecipientResolver maps an account id to an email address.
type RecipientResolver interface {
	Recipient(ctx context.Context, userID uuid.UUID) (email, name string, err error)
}

// EmailHandler delivers outbox entries as emails.
type EmailHandler struct {
	sender    EmailSender
	resolver  RecipientResolver
	templates map[string]string
}

// NewEmailHandler creates the email delivery handler. The templates map
// turns a template key into a subject line; unknown keys fall back to the
// key itself.
func NewEmailHandler(sender EmailSender, resolver RecipientResolver) *EmailHandler {
	return &EmailHandler{
		sender:   sender,
		resolver: resolver,
		templates: map[string]string{
			"booking.created":       "New appointment request",
			"appointment.cancelled": "Appointment cancelled",
			"payment.completed":     "Payment received",
		},
	}
}

// Handle sends one queued notification.
func (h *EmailHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	if h.sender == nil {
		// Email disabled; treat as delivered so the outbox drains.
		return nil
	}
	email, name, err := h.resolver.Recipient(ctx, entry.UserID)
	if err != nil {
		return fmt.Errorf("notify: resolve recipient: %w", err)
	}

	subject, ok := h.templates[entry.TemplateKey]
	if !ok {
		subject = entry.TemplateKey
	}
	body := formatBody(entry)

	return h.sender.Send(ctx, EmailMessage{
		To:      email,
		ToName:  name,
		Subject: subject,
		Body:    body,
	})
}

func formatBody(entry OutboxEntry) string {
	var payload map[string]any
	if err := json.Unmarshal(entry.Payload, &payload); err != nil || len(payload) == 0 {
		return entry.TemplateKey
	}
	body := entry.TemplateKey + "\n"
	for k, v := range payload {
		body += fmt.Sprintf("%s: %v\n", k, v)
	}
	if entry.Link != "" {
		body += entry.Link + "\n"
	}
	return body
}
