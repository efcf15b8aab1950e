package availability

import (
	"testing"
	"time"
)

func TestGenerateCandidatesWorkingDay(t *testing.T) {
	policy := WorkingPolicy(DayConfig{
		Start:  mustClock(t, "10:00"),
		End:    mustClock(t, "18:00"),
		Breaks: []ClockTime{mustClock(t, "12:00"), mustClock(t, "12:30")},
	})

	slots := GenerateCandidates(policy, 30*time.Minute)

	if len(slots) != 14 {
		t.Fatalf("expected 14 slots (16 steps minus 2 breaks), got %d: %v", len(slots), slots)
	}
	if slots[0] != mustClock(t, "10:00") {
		t.Errorf("first slot should be 10:00, got %s", slots[0])
	}
	if slots[len(slots)-1] != mustClock(t, "17:30") {
		t.Errorf("last slot should be 17:30 (end is exclusive), got %s", slots[len(slots)-1])
	}
	for _, s := range slots {
		if s == mustClock(t, "12:00") || s == mustClock(t, "12:30") {
			t.Errorf("break slot %s must not be generated", s)
		}
	}
}

func TestGenerateCandidatesDayOff(t *testing.T) {
	if slots := GenerateCandidates(DayOffPolicy(), 30*time.Minute); len(slots) != 0 {
		t.Fatalf("day off must yield no slots, got %v", slots)
	}
}

func TestGenerateCandidatesExplicit(t *testing.T) {
	explicit := []ClockTime{mustClock(t, "09:15"), mustClock(t, "14:45")}
	slots := GenerateCandidates(ExplicitPolicy(explicit), 30*time.Minute)
	if len(slots) != 2 || slots[0] != explicit[0] || slots[1] != explicit[1] {
		t.Fatalf("explicit slots must pass through verbatim, got %v", slots)
	}
	// Returned slice must be a copy, not an alias into the policy.
	slots[0] = mustClock(t, "00:00")
	if explicit[0] != mustClock(t, "09:15") {
		t.Fatal("explicit slot list was mutated through the result")
	}
}

func TestGenerateCandidatesGranularity(t *testing.T) {
	policy := WorkingPolicy(DayConfig{Start: mustClock(t, "10:00"), End: mustClock(t, "12:00")})
	slots := GenerateCandidates(policy, time.Hour)
	if len(slots) != 2 || slots[0] != mustClock(t, "10:00") || slots[1] != mustClock(t, "11:00") {
		t.Fatalf("unexpected hourly slots: %v", slots)
	}
}

func TestDefaultWeekly(t *testing.T) {
	tpl := DefaultWeekly([]time.Weekday{time.Tuesday, time.Wednesday}, mustClock(t, "10:00"), mustClock(t, "18:00"))

	if tpl.Days[time.Tuesday] != nil || tpl.Days[time.Wednesday] != nil {
		t.Fatal("configured days off must be nil entries")
	}
	mon := tpl.Days[time.Monday]
	if mon == nil || mon.Start != mustClock(t, "10:00") || mon.End != mustClock(t, "18:00") {
		t.Fatalf("unexpected monday window: %+v", mon)
	}
	if err := tpl.Validate(); err != nil {
		t.Fatalf("default template must validate: %v", err)
	}
}
