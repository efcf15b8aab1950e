package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	template  *WeeklyTemplate
	overrides map[string]*DateOverride
}

func newFakeStore() *fakeStore {
	return &fakeStore{overrides: map[string]*DateOverride{}}
}

func (f *fakeStore) GetWeeklyTemplate(_ context.Context, _ uuid.UUID) (*WeeklyTemplate, error) {
	return f.template, nil
}

func (f *fakeStore) UpsertWeeklyTemplate(_ context.Context, _ uuid.UUID, tpl WeeklyTemplate) error {
	f.template = &tpl
	return nil
}

func (f *fakeStore) GetOverride(_ context.Context, _ uuid.UUID, day time.Time) (*DateOverride, error) {
	return f.overrides[day.Format(time.DateOnly)], nil
}

func (f *fakeStore) UpsertOverride(_ context.Context, o *DateOverride) error {
	f.overrides[o.Day.Format(time.DateOnly)] = o
	return nil
}

func (f *fakeStore) DeleteOverride(_ context.Context, _ uuid.UUID, day time.Time) error {
	key := day.Format(time.DateOnly)
	if _, ok := f.overrides[key]; !ok {
		return ErrNotFound
	}
	delete(f.overrides, key)
	return nil
}

type fakeBooked struct {
	starts []time.Time
}

func (f *fakeBooked) BookedStarts(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]time.Time, error) {
	return f.starts, nil
}

func newTestService(t *testing.T, store Store, booked AppointmentSource) *Service {
	t.Helper()
	svc := NewService(store, booked, ServiceConfig{
		PractitionerID: uuid.New(),
		Location:       time.UTC,
		Granularity:    30 * time.Minute,
		DefaultWeek:    DefaultWeekly([]time.Weekday{time.Tuesday, time.Wednesday}, mustClock(t, "10:00"), mustClock(t, "18:00")),
	}, nil)
	// Far in the past so the same-day filter never interferes unless a test
	// moves the clock deliberately.
	return svc.WithClock(func() time.Time { return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC) })
}

// monday is a fixed Monday used across the tests.
var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func storedWeek(t *testing.T) WeeklyTemplate {
	t.Helper()
	return WeeklyTemplate{Days: map[time.Weekday]*DayConfig{
		time.Monday: {
			Start:  mustClock(t, "10:00"),
			End:    mustClock(t, "18:00"),
			Breaks: []ClockTime{mustClock(t, "12:00"), mustClock(t, "12:30")},
		},
	}}
}

func TestAvailableSlotsWeeklyScenario(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeBooked{})
	if err := svc.SetWeeklyTemplate(context.Background(), storedWeek(t)); err != nil {
		t.Fatal(err)
	}

	slots, err := svc.AvailableSlots(context.Background(), monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 14 {
		t.Fatalf("expected 14 slots, got %d: %v", len(slots), slots)
	}
	if slots[0] != mustClock(t, "10:00") || slots[len(slots)-1] != mustClock(t, "17:30") {
		t.Fatalf("unexpected slot range: %v", slots)
	}

	// A weekday with no entry is a day off.
	sunday := monday.AddDate(0, 0, -1)
	slots, err = svc.AvailableSlots(context.Background(), sunday)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 0 {
		t.Fatalf("absent weekday entry must mean day off, got %v", slots)
	}
}

func TestAvailableSlotsDefaultWeekFallback(t *testing.T) {
	svc := newTestService(t, newFakeStore(), &fakeBooked{})

	// No template stored: Monday uses the configured default window.
	slots, err := svc.AvailableSlots(context.Background(), monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 16 {
		t.Fatalf("expected 16 default slots, got %d", len(slots))
	}

	// Tuesday is a configured default day off.
	tuesday := monday.AddDate(0, 0, 1)
	slots, err = svc.AvailableSlots(context.Background(), tuesday)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 0 {
		t.Fatalf("default tuesday must be off, got %v", slots)
	}
}

func TestOverridePrecedence(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakeBooked{})
	if err := svc.SetWeeklyTemplate(context.Background(), storedWeek(t)); err != nil {
		t.Fatal(err)
	}

	if err := svc.SetDateOverride(context.Background(), monday, true, nil); err != nil {
		t.Fatal(err)
	}
	slots, err := svc.AvailableSlots(context.Background(), monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 0 {
		t.Fatalf("day-off override must win over template, got %v", slots)
	}

	// Clearing the override restores the weekly-derived slots.
	if err := svc.ClearDateOverride(context.Background(), monday); err != nil {
		t.Fatal(err)
	}
	slots, err = svc.AvailableSlots(context.Background(), monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 14 {
		t.Fatalf("expected weekly slots back after clearing override, got %d", len(slots))
	}

	// Explicit slots replace generated slots entirely.
	explicit := []ClockTime{mustClock(t, "09:00"), mustClock(t, "20:00")}
	if err := svc.SetDateOverride(context.Background(), monday, false, explicit); err != nil {
		t.Fatal(err)
	}
	slots, err = svc.AvailableSlots(context.Background(), monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 2 || slots[0] != explicit[0] || slots[1] != explicit[1] {
		t.Fatalf("explicit override must replace generated slots, got %v", slots)
	}
}

func TestClearMissingOverride(t *testing.T) {
	svc := newTestService(t, newFakeStore(), nil)
	if err := svc.ClearDateOverride(context.Background(), monday); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConflictFilterRemovesBookedSlots(t *testing.T) {
	store := newFakeStore()
	booked := &fakeBooked{starts: []time.Time{
		mustClock(t, "10:00").At(monday, time.UTC),
		mustClock(t, "15:00").At(monday, time.UTC),
	}}
	svc := newTestService(t, store, booked)
	if err := svc.SetWeeklyTemplate(context.Background(), storedWeek(t)); err != nil {
		t.Fatal(err)
	}

	slots, err := svc.AvailableSlots(context.Background(), monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 12 {
		t.Fatalf("expected 12 slots after removing 2 booked, got %d", len(slots))
	}
	for _, s := range slots {
		if s == mustClock(t, "10:00") || s == mustClock(t, "15:00") {
			t.Fatalf("booked slot %s still offered", s)
		}
	}
}

func TestSameDayPastSlotsFiltered(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeBooked{}, ServiceConfig{
		PractitionerID: uuid.New(),
		Location:       time.UTC,
		Granularity:    30 * time.Minute,
		LeadTime:       15 * time.Minute,
		DefaultWeek:    DefaultWeekly(nil, mustClock(t, "10:00"), mustClock(t, "18:00")),
	}, nil)
	// Clock fixed to 13:50 on the requested Monday: everything up to and
	// including 14:00 is inside now+lead and must not be offered.
	svc.WithClock(func() time.Time {
		return time.Date(2026, 1, 5, 13, 50, 0, 0, time.UTC)
	})

	slots, err := svc.AvailableSlots(context.Background(), monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) == 0 {
		t.Fatal("expected remaining afternoon slots")
	}
	if slots[0] != mustClock(t, "14:30") {
		t.Fatalf("first offered slot should be 14:30, got %s", slots[0])
	}
}

func TestSetWeeklyTemplateRejectsInvalid(t *testing.T) {
	svc := newTestService(t, newFakeStore(), nil)
	bad := WeeklyTemplate{Days: map[time.Weekday]*DayConfig{
		time.Monday: {Start: mustClock(t, "18:00"), End: mustClock(t, "10:00")},
	}}
	if err := svc.SetWeeklyTemplate(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
}
