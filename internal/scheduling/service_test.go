package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyusok/calldoc-reservation-sub000/internal/availability"
)

type fakeStore struct {
	created      *Appointment
	createErr    error
	appt         *Appointment
	pay          *PaymentSummary
	cancelErr    error
	cancelCalled bool
	feeAmount    int64
}

func (f *fakeStore) CreateWithPayment(_ context.Context, appt *Appointment) error {
	if f.createErr != nil {
		return f.createErr
	}
	appt.Status = StatusPending
	f.created = appt
	return nil
}

func (f *fakeStore) GetWithPayment(_ context.Context, _ uuid.UUID) (*Appointment, *PaymentSummary, error) {
	if f.appt == nil {
		return nil, nil, ErrNotFound
	}
	return f.appt, f.pay, nil
}

func (f *fakeStore) ListByPatient(_ context.Context, _ uuid.UUID) ([]*Appointment, error) {
	return nil, nil
}

func (f *fakeStore) SetFee(_ context.Context, _ uuid.UUID, amount int64) error {
	f.feeAmount = amount
	return nil
}

func (f *fakeStore) Complete(_ context.Context, _ uuid.UUID) error { return nil }
func (f *fakeStore) Reject(_ context.Context, _ uuid.UUID) error   { return nil }

func (f *fakeStore) CancelUnpaid(_ context.Context, _ uuid.UUID) error {
	f.cancelCalled = true
	return f.cancelErr
}

type fakeSlots struct {
	offered []availability.ClockTime
	err     error
}

func (f *fakeSlots) AvailableSlots(_ context.Context, _ time.Time) ([]availability.ClockTime, error) {
	return f.offered, f.err
}

type fakeRefunder struct {
	called bool
	err    error
}

func (f *fakeRefunder) Refund(_ context.Context, _ uuid.UUID, _ string) error {
	f.called = true
	return f.err
}

type fakeNotifier struct {
	keys []string
}

func (f *fakeNotifier) NotifyOperators(_ context.Context, templateKey string, _ map[string]any, _ string) {
	f.keys = append(f.keys, templateKey)
}

func clock(t *testing.T, s string) availability.ClockTime {
	t.Helper()
	c, err := availability.ParseClock(s)
	require.NoError(t, err)
	return c
}

var bookingDay = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func newBookService(store *fakeStore, slots SlotSource) *Service {
	svc := NewService(store, slots, uuid.New(), time.UTC, nil)
	return svc.WithClock(func() time.Time {
		return time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	})
}

func TestBookHappyPath(t *testing.T) {
	store := &fakeStore{}
	slots := &fakeSlots{offered: []availability.ClockTime{clock(t, "10:00"), clock(t, "10:30")}}
	notifier := &fakeNotifier{}
	svc := newBookService(store, slots).WithNotifier(notifier)

	patient := uuid.New()
	appt, err := svc.Book(context.Background(), patient, bookingDay, clock(t, "10:00"), "headache")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, patient, appt.PatientID)
	assert.Equal(t, "headache", appt.Symptoms)
	assert.Equal(t, appt.StartAt.Add(SlotDuration), appt.EndAt)
	assert.Equal(t, 10, appt.StartAt.Hour())
	require.NotNil(t, store.created)
	assert.Equal(t, []string{"booking.created"}, notifier.keys)
}

func TestBookRejectsPastDate(t *testing.T) {
	svc := newBookService(&fakeStore{}, &fakeSlots{})
	past := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Book(context.Background(), uuid.New(), past, clock(t, "10:00"), "")
	assert.ErrorIs(t, err, ErrPastDate)
}

func TestBookRejectsUnofferedSlot(t *testing.T) {
	slots := &fakeSlots{offered: []availability.ClockTime{clock(t, "10:00")}}
	svc := newBookService(&fakeStore{}, slots)
	_, err := svc.Book(context.Background(), uuid.New(), bookingDay, clock(t, "11:00"), "")
	assert.ErrorIs(t, err, ErrSlotInvalid)
}

func TestBookSurfacesSlotTaken(t *testing.T) {
	store := &fakeStore{createErr: ErrSlotTaken}
	slots := &fakeSlots{offered: []availability.ClockTime{clock(t, "10:00")}}
	svc := newBookService(store, slots)
	_, err := svc.Book(context.Background(), uuid.New(), bookingDay, clock(t, "10:00"), "")
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestSetFeeRejectsNonPositive(t *testing.T) {
	svc := newBookService(&fakeStore{}, nil)
	assert.ErrorIs(t, svc.SetFee(context.Background(), uuid.New(), 0), ErrFeeNotSet)
	assert.ErrorIs(t, svc.SetFee(context.Background(), uuid.New(), -100), ErrFeeNotSet)
}

func TestCancelUnsettled(t *testing.T) {
	store := &fakeStore{
		appt: &Appointment{ID: uuid.New(), Status: StatusPending},
		pay:  &PaymentSummary{Status: "pending"},
	}
	refunder := &fakeRefunder{}
	svc := newBookService(store, nil).WithRefunder(refunder)

	require.NoError(t, svc.Cancel(context.Background(), store.appt.ID, "patient request"))
	assert.True(t, store.cancelCalled)
	assert.False(t, refunder.called, "unsettled cancel must not hit the refund path")
}

func TestCancelSettledGoesThroughRefund(t *testing.T) {
	store := &fakeStore{
		appt: &Appointment{ID: uuid.New(), Status: StatusConfirmed},
		pay:  &PaymentSummary{Status: "completed", AmountCents: 15000},
	}
	refunder := &fakeRefunder{}
	svc := newBookService(store, nil).WithRefunder(refunder)

	require.NoError(t, svc.Cancel(context.Background(), store.appt.ID, "operator"))
	assert.True(t, refunder.called)
	assert.False(t, store.cancelCalled)
}

func TestCancelRefundFailureSurfaced(t *testing.T) {
	gatewayErr := errors.New("gateway down")
	store := &fakeStore{
		appt: &Appointment{ID: uuid.New(), Status: StatusConfirmed},
		pay:  &PaymentSummary{Status: "completed"},
	}
	svc := newBookService(store, nil).WithRefunder(&fakeRefunder{err: gatewayErr})

	err := svc.Cancel(context.Background(), store.appt.ID, "x")
	assert.ErrorIs(t, err, gatewayErr)
}

func TestCancelSettlementRaceRoutesToRefund(t *testing.T) {
	// Read sees an unsettled payment, but the cancel transaction finds it
	// settled; the service must fall through to the refund path.
	store := &fakeStore{
		appt:      &Appointment{ID: uuid.New(), Status: StatusPending},
		pay:       &PaymentSummary{Status: "pending"},
		cancelErr: ErrPaymentSettled,
	}
	refunder := &fakeRefunder{}
	svc := newBookService(store, nil).WithRefunder(refunder)

	require.NoError(t, svc.Cancel(context.Background(), store.appt.ID, "x"))
	assert.True(t, refunder.called)
}

func TestCancelTerminalRejected(t *testing.T) {
	store := &fakeStore{
		appt: &Appointment{ID: uuid.New(), Status: StatusCompleted},
		pay:  &PaymentSummary{Status: "completed"},
	}
	svc := newBookService(store, nil)
	assert.ErrorIs(t, svc.Cancel(context.Background(), store.appt.ID, "x"), ErrInvalidTransition)
}
