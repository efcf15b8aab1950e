package availability

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrValidation marks malformed templates, overrides, or clock values.
var ErrValidation = errors.New("availability: validation failed")

// ErrNotFound is returned when an override to clear does not exist.
var ErrNotFound = errors.New("availability: not found")

// ClockTime is a wall-clock time-of-day, stored as minutes since midnight.
// It serializes as "15:04".
type ClockTime int

// ParseClock parses "HH:MM" into a ClockTime.
func ParseClock(s string) (ClockTime, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: bad clock time %q", ErrValidation, s)
	}
	return ClockTime(parsed.Hour()*60 + parsed.Minute()), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Valid reports whether the value falls within a single day.
func (c ClockTime) Valid() bool {
	return c >= 0 && c < 24*60
}

// At anchors the clock time onto a calendar date in the given location.
func (c ClockTime) At(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, loc)
}

// ClockFrom extracts the time-of-day of t in the given location.
func ClockFrom(t time.Time, loc *time.Location) ClockTime {
	local := t.In(loc)
	return ClockTime(local.Hour()*60 + local.Minute())
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DayConfig is the working window for one weekday. Break times are excluded
// from slot generation but do not split the window.
type DayConfig struct {
	Start  ClockTime   `json:"start"`
	End    ClockTime   `json:"end"`
	Breaks []ClockTime `json:"breaks,omitempty"`
}

// Validate checks start < end and that breaks fall within [start, end).
func (d *DayConfig) Validate() error {
	if !d.Start.Valid() || !d.End.Valid() {
		return fmt.Errorf("%w: clock time out of range", ErrValidation)
	}
	if d.Start >= d.End {
		return fmt.Errorf("%w: start %s must be before end %s", ErrValidation, d.Start, d.End)
	}
	for _, b := range d.Breaks {
		if b < d.Start || b >= d.End {
			return fmt.Errorf("%w: break %s outside working window", ErrValidation, b)
		}
	}
	return nil
}

var weekdayKeys = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// WeeklyTemplate is the recurring availability for one practitioner. A nil
// entry means the practitioner does not work that weekday.
type WeeklyTemplate struct {
	Days map[time.Weekday]*DayConfig
}

// Validate checks every configured day.
func (t *WeeklyTemplate) Validate() error {
	for day, cfg := range t.Days {
		if cfg == nil {
			continue
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%s: %w", weekdayKeys[day], err)
		}
	}
	return nil
}

// MarshalJSON encodes days under short weekday keys so the stored blob stays
// readable in the database.
func (t WeeklyTemplate) MarshalJSON() ([]byte, error) {
	out := make(map[string]*DayConfig, len(t.Days))
	for day, cfg := range t.Days {
		out[weekdayKeys[day]] = cfg
	}
	return json.Marshal(out)
}

func (t *WeeklyTemplate) UnmarshalJSON(data []byte) error {
	var raw map[string]*DayConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Days = make(map[time.Weekday]*DayConfig, len(raw))
	for key, cfg := range raw {
		found := false
		for i, name := range weekdayKeys {
			if name == key {
				t.Days[time.Weekday(i)] = cfg
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown weekday key %q", ErrValidation, key)
		}
	}
	return nil
}

// DateOverride is a per-date exception to the weekly template. At most one
// override exists per date. ExplicitSlots, when present, replaces generated
// slots for that date entirely.
type DateOverride struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	Day            time.Time
	IsDayOff       bool
	ExplicitSlots  []ClockTime
	UpdatedAt      time.Time
}

// Validate checks the explicit slot list for valid, strictly increasing times.
func (o *DateOverride) Validate() error {
	if o.IsDayOff && len(o.ExplicitSlots) > 0 {
		return fmt.Errorf("%w: day off cannot carry explicit slots", ErrValidation)
	}
	for _, s := range o.ExplicitSlots {
		if !s.Valid() {
			return fmt.Errorf("%w: slot %s out of range", ErrValidation, s)
		}
	}
	if !sort.SliceIsSorted(o.ExplicitSlots, func(i, j int) bool {
		return o.ExplicitSlots[i] < o.ExplicitSlots[j]
	}) {
		return fmt.Errorf("%w: explicit slots must be sorted", ErrValidation)
	}
	for i := 1; i < len(o.ExplicitSlots); i++ {
		if o.ExplicitSlots[i] == o.ExplicitSlots[i-1] {
			return fmt.Errorf("%w: duplicate slot %s", ErrValidation, o.ExplicitSlots[i])
		}
	}
	return nil
}
