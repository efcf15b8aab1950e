package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// OutboxEntry is a queued notification for one recipient.
type OutboxEntry struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	TemplateKey string
	Payload     json.RawMessage
	Link        string
	CreatedAt   time.Time
}

// DeliveryHandler pushes a queued notification out a transport.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type outboxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OutboxStore persists notifications so a crashed deliverer never loses one.
type OutboxStore struct {
	pool outboxDB
}

// NewOutboxStore creates an outbox store backed by the shared pool.
func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &OutboxStore{pool: pool}
}

func newOutboxStoreWithDB(d outboxDB) *OutboxStore {
	return &OutboxStore{pool: d}
}

// Insert queues one notification.
func (s *OutboxStore) Insert(ctx context.Context, userID uuid.UUID, templateKey string, payload any, link string) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("notify: marshal payload: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO notification_outbox (id, user_id, template_key, payload, link)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query, id, userID, templateKey, data, link); err != nil {
		return uuid.Nil, fmt.Errorf("notify: insert outbox: %w", err)
	}
	return id, nil
}

// OperatorIDs returns every operator account that should hear about desk
// events.
func (s *OutboxStore) OperatorIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users WHERE role = 'operator'`)
	if err != nil {
		return nil, fmt.Errorf("notify: list operators: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("notify: scan operator: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Recipient returns the email address and display name for an account.
func (s *OutboxStore) Recipient(ctx context.Context, userID uuid.UUID) (string, string, error) {
	var email, name string
	query := `SELECT email, display_name FROM users WHERE id = $1`
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&email, &name); err != nil {
		return "", "", fmt.Errorf("notify: recipient lookup: %w", err)
	}
	return email, name, nil
}

// FetchPending returns undelivered notifications, oldest first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, user_id, template_key, payload, link, created_at
		FROM notification_outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: fetch pending: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.TemplateKey, &payload, &entry.Link, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan outbox: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkDelivered stamps a notification as sent. Returns false when another
// deliverer got there first.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE notification_outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL`
	ct, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("notify: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Deliverer polls the outbox and hands entries to the transport handler.
type Deliverer struct {
	store     *OutboxStore
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

// NewDeliverer creates an outbox deliverer.
func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:     store,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

// WithBatchSize overrides how many entries a drain pass picks up.
func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

// WithInterval overrides the polling interval.
func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start runs the delivery loop until the context ends.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("notification delivery failed", "error", err, "entry_id", entry.ID, "template", entry.TemplateKey)
			continue
		}
		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark notification delivered", "error", err, "entry_id", entry.ID)
		} else if ok {
			d.logger.Debug("notification delivered", "entry_id", entry.ID, "template", entry.TemplateKey)
		}
	}
}
