package scheduling

// transitions is the legal lifecycle graph. Anything absent is rejected,
// which makes completed/cancelled/rejected terminal by construction.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusRejected},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// IsActive reports whether an appointment still occupies its slot. Rejected
// appointments stay active on purpose: the practitioner refused the request,
// but the slot is not silently reopened without an operator override.
func IsActive(s Status) bool {
	return s != StatusCancelled
}
