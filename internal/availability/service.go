package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// Store is the persistence surface the service needs. *Repository satisfies it.
type Store interface {
	GetWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID) (*WeeklyTemplate, error)
	UpsertWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID, tpl WeeklyTemplate) error
	GetOverride(ctx context.Context, practitionerID uuid.UUID, day time.Time) (*DateOverride, error)
	UpsertOverride(ctx context.Context, o *DateOverride) error
	DeleteOverride(ctx context.Context, practitionerID uuid.UUID, day time.Time) error
}

// AppointmentSource reports slot starts already taken by non-cancelled
// appointments. Implemented by the scheduling repository.
type AppointmentSource interface {
	BookedStarts(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]time.Time, error)
}

// ServiceConfig carries the fixed scheduling parameters.
type ServiceConfig struct {
	PractitionerID uuid.UUID
	Location       *time.Location
	Granularity    time.Duration
	LeadTime       time.Duration
	DefaultWeek    WeeklyTemplate
}

// Service resolves day policies and produces bookable slots.
type Service struct {
	store  Store
	booked AppointmentSource
	cfg    ServiceConfig
	logger *logging.Logger
	now    func() time.Time
}

// NewService constructs an availability service.
func NewService(store Store, booked AppointmentSource, cfg ServiceConfig, logger *logging.Logger) *Service {
	if store == nil {
		panic("availability: store required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Granularity <= 0 {
		cfg.Granularity = 30 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:  store,
		booked: booked,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the wall clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ResolveDayPolicy determines the effective availability for one date.
// Overrides win over the weekly template; a missing template falls back to
// the configured default week.
func (s *Service) ResolveDayPolicy(ctx context.Context, day time.Time) (DayPolicy, error) {
	override, err := s.store.GetOverride(ctx, s.cfg.PractitionerID, day)
	if err != nil {
		return DayPolicy{}, err
	}
	if override != nil {
		if override.IsDayOff {
			return DayOffPolicy(), nil
		}
		if len(override.ExplicitSlots) > 0 {
			return ExplicitPolicy(override.ExplicitSlots), nil
		}
	}

	tpl, err := s.store.GetWeeklyTemplate(ctx, s.cfg.PractitionerID)
	if err != nil {
		return DayPolicy{}, err
	}
	if tpl == nil {
		fallback := s.cfg.DefaultWeek
		tpl = &fallback
	}

	cfg, ok := tpl.Days[day.Weekday()]
	if !ok || cfg == nil {
		return DayOffPolicy(), nil
	}
	return WorkingPolicy(*cfg), nil
}

// AvailableSlots returns the ordered bookable slots for a date. Slots taken
// by non-cancelled appointments are removed, as are slots already in the
// past for same-day requests (plus the configured lead time).
func (s *Service) AvailableSlots(ctx context.Context, day time.Time) ([]ClockTime, error) {
	policy, err := s.ResolveDayPolicy(ctx, day)
	if err != nil {
		return nil, err
	}
	candidates := GenerateCandidates(policy, s.cfg.Granularity)
	if len(candidates) == 0 {
		return nil, nil
	}

	taken := map[ClockTime]bool{}
	if s.booked != nil {
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.cfg.Location)
		starts, err := s.booked.BookedStarts(ctx, s.cfg.PractitionerID, dayStart, dayStart.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("availability: load booked starts: %w", err)
		}
		for _, st := range starts {
			taken[ClockFrom(st, s.cfg.Location)] = true
		}
	}

	cutoff := s.now().Add(s.cfg.LeadTime)
	var slots []ClockTime
	for _, c := range candidates {
		if taken[c] {
			continue
		}
		if c.At(day, s.cfg.Location).Before(cutoff) {
			continue
		}
		slots = append(slots, c)
	}
	return slots, nil
}

// SetWeeklyTemplate validates and stores the recurring template.
func (s *Service) SetWeeklyTemplate(ctx context.Context, tpl WeeklyTemplate) error {
	if err := tpl.Validate(); err != nil {
		return err
	}
	if err := s.store.UpsertWeeklyTemplate(ctx, s.cfg.PractitionerID, tpl); err != nil {
		return err
	}
	s.logger.Info("weekly template updated", "practitioner_id", s.cfg.PractitionerID)
	return nil
}

// SetDateOverride validates and upserts a per-date exception.
func (s *Service) SetDateOverride(ctx context.Context, day time.Time, isDayOff bool, slots []ClockTime) error {
	override := &DateOverride{
		PractitionerID: s.cfg.PractitionerID,
		Day:            day,
		IsDayOff:       isDayOff,
		ExplicitSlots:  slots,
	}
	if err := override.Validate(); err != nil {
		return err
	}
	if err := s.store.UpsertOverride(ctx, override); err != nil {
		return err
	}
	s.logger.Info("date override set", "day", day.Format(time.DateOnly), "day_off", isDayOff, "slots", len(slots))
	return nil
}

// ClearDateOverride removes an override so the date falls back to the
// weekly template.
func (s *Service) ClearDateOverride(ctx context.Context, day time.Time) error {
	if err := s.store.DeleteOverride(ctx, s.cfg.PractitionerID, day); err != nil {
		return err
	}
	s.logger.Info("date override cleared", "day", day.Format(time.DateOnly))
	return nil
}
