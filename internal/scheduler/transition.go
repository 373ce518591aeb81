package scheduler

import (
	"laundromat-backend/internal/event"
	"laundromat-backend/internal/model"
)

// DefaultThreshold is the remaining time in seconds at which the
// almost-done notification fires.
const DefaultThreshold = 60

// Advance computes the state of m one tick later together with the events
// the transition raises. It is pure: m is not modified.
//
// A running machine loses one second. The first tick that leaves it with
// 0 < remaining <= threshold sets the notified flag and raises AlmostDone;
// the tick that reaches zero frees the machine and raises Finished. Machines
// that are not in use are returned unchanged.
func Advance(m model.Machine, threshold int) (model.Machine, []event.Kind) {
	if m.Status != model.StatusInUse {
		return m, nil
	}

	left := m.Remaining() - 1
	if left <= 0 {
		return m.Idle(model.StatusAvailable), []event.Kind{event.KindFinished}
	}

	next := m.Clone()
	next.RemainingSeconds = &left
	if left <= threshold && !m.NotifiedAlmostDone {
		next.NotifiedAlmostDone = true
		return next, []event.Kind{event.KindAlmostDone}
	}
	return next, nil
}
