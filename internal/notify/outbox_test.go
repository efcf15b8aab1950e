package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestOutboxInsert(t *testing.T) {
	mock := newMock(t)
	store := newOutboxStoreWithDB(mock)
	userID := uuid.New()

	mock.ExpectExec("INSERT INTO notification_outbox").
		WithArgs(pgxmock.AnyArg(), userID, "booking.created", pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.Insert(context.Background(), userID, "booking.created", map[string]any{"k": "v"}, "")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxFetchPending(t *testing.T) {
	mock := newMock(t)
	store := newOutboxStoreWithDB(mock)

	entryID := uuid.New()
	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT id, user_id, template_key, payload, link, created_at").
		WithArgs(int32(10)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "template_key", "payload", "link", "created_at"}).
			AddRow(entryID, userID, "payment.completed", []byte(`{"a":1}`), "", now))

	entries, err := store.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entryID, entries[0].ID)
	assert.Equal(t, "payment.completed", entries[0].TemplateKey)
	assert.JSONEq(t, `{"a":1}`, string(entries[0].Payload))
}

func TestOutboxMarkDeliveredRace(t *testing.T) {
	mock := newMock(t)
	store := newOutboxStoreWithDB(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE notification_outbox").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.MarkDelivered(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}

type recordingHandler struct {
	handled []uuid.UUID
	err     error
}

func (h *recordingHandler) Handle(_ context.Context, entry OutboxEntry) error {
	if h.err != nil {
		return h.err
	}
	h.handled = append(h.handled, entry.ID)
	return nil
}

func TestDelivererDrainsAndMarks(t *testing.T) {
	mock := newMock(t)
	store := newOutboxStoreWithDB(mock)
	entryID := uuid.New()

	mock.ExpectQuery("SELECT id, user_id, template_key, payload, link, created_at").
		WithArgs(int32(25)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "template_key", "payload", "link", "created_at"}).
			AddRow(entryID, uuid.New(), "booking.created", []byte(`{}`), "", time.Now()))
	mock.ExpectExec("UPDATE notification_outbox").
		WithArgs(entryID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	handler := &recordingHandler{}
	d := NewDeliverer(store, handler, logging.New("error"))
	d.drain(context.Background())

	assert.Equal(t, []uuid.UUID{entryID}, handler.handled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelivererLeavesFailedEntriesPending(t *testing.T) {
	mock := newMock(t)
	store := newOutboxStoreWithDB(mock)

	mock.ExpectQuery("SELECT id, user_id, template_key, payload, link, created_at").
		WithArgs(int32(25)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "template_key", "payload", "link", "created_at"}).
			AddRow(uuid.New(), uuid.New(), "booking.created", []byte(`{}`), "", time.Now()))
	// No UPDATE expected; a failed delivery must not mark the entry.

	handler := &recordingHandler{err: context.DeadlineExceeded}
	d := NewDeliverer(store, handler, logging.New("error"))
	d.drain(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}
