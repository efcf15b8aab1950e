package availability

import "time"

// PolicyKind discriminates the resolved day policy.
type PolicyKind int

const (
	// PolicyDayOff means no slots are generated for the date.
	PolicyDayOff PolicyKind = iota
	// PolicyWorking generates slots from a working window minus breaks.
	PolicyWorking
	// PolicyExplicit uses an override's slot list verbatim.
	PolicyExplicit
)

// DayPolicy is the effective availability for one calendar date after
// override and template resolution.
type DayPolicy struct {
	Kind   PolicyKind
	Start  ClockTime
	End    ClockTime
	Breaks []ClockTime
	Slots  []ClockTime
}

// DayOffPolicy returns the empty policy.
func DayOffPolicy() DayPolicy {
	return DayPolicy{Kind: PolicyDayOff}
}

// WorkingPolicy returns a policy generating slots from the given window.
func WorkingPolicy(cfg DayConfig) DayPolicy {
	return DayPolicy{Kind: PolicyWorking, Start: cfg.Start, End: cfg.End, Breaks: cfg.Breaks}
}

// ExplicitPolicy returns a policy using the given slots verbatim.
func ExplicitPolicy(slots []ClockTime) DayPolicy {
	return DayPolicy{Kind: PolicyExplicit, Slots: slots}
}

// GenerateCandidates derives the ordered slot candidates for a policy.
// Working windows are walked in granularity steps over the half-open
// interval [start, end); times exactly matching a break are skipped.
func GenerateCandidates(policy DayPolicy, granularity time.Duration) []ClockTime {
	switch policy.Kind {
	case PolicyExplicit:
		return append([]ClockTime(nil), policy.Slots...)
	case PolicyWorking:
		step := ClockTime(granularity / time.Minute)
		if step <= 0 {
			step = 30
		}
		var slots []ClockTime
		for t := policy.Start; t < policy.End; t += step {
			if isBreak(t, policy.Breaks) {
				continue
			}
			slots = append(slots, t)
		}
		return slots
	default:
		return nil
	}
}

func isBreak(t ClockTime, breaks []ClockTime) bool {
	for _, b := range breaks {
		if b == t {
			return true
		}
	}
	return false
}

// DefaultWeekly builds the named fallback template used before an operator
// has stored one. Which days are off and the working window come from
// configuration, not from code.
func DefaultWeekly(daysOff []time.Weekday, start, end ClockTime) WeeklyTemplate {
	off := make(map[time.Weekday]bool, len(daysOff))
	for _, d := range daysOff {
		off[d] = true
	}
	days := make(map[time.Weekday]*DayConfig, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if off[d] {
			days[d] = nil
			continue
		}
		days[d] = &DayConfig{Start: start, End: end}
	}
	return WeeklyTemplate{Days: days}
}
