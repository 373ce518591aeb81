package event

import (
	"time"

	"github.com/google/uuid"

	"laundromat-backend/internal/model"
)

// Kind names a machine lifecycle event.
type Kind string

const (
	// KindStarted is raised when a paid run begins.
	KindStarted Kind = "started"
	// KindStopped is raised when a run is cancelled or a machine is forced available.
	KindStopped Kind = "stopped"
	// KindAlmostDone is raised once per run when remaining time first drops to the threshold.
	KindAlmostDone Kind = "almost-done"
	// KindFinished is raised once per run on the tick that reaches zero.
	KindFinished Kind = "finished"
)

// Notifiable reports whether events of kind k are delivered to recipients.
func (k Kind) Notifiable() bool {
	return k == KindAlmostDone || k == KindFinished
}

// Event is a committed machine transition.
type Event struct {
	ID               string              `json:"id"`
	Kind             Kind                `json:"kind"`
	MachineID        string              `json:"machineId"`
	MachineKind      model.MachineKind   `json:"machineKind"`
	Status           model.MachineStatus `json:"status"`
	RemainingSeconds int                 `json:"remainingSeconds"`
	At               time.Time           `json:"at"`
}

// New builds an event of kind k for the post-transition state of m.
func New(k Kind, m model.Machine, at time.Time) Event {
	return Event{
		ID:               uuid.NewString(),
		Kind:             k,
		MachineID:        m.ID,
		MachineKind:      m.Kind,
		Status:           m.Status,
		RemainingSeconds: m.Remaining(),
		At:               at,
	}
}

// Publisher accepts events for asynchronous delivery. Publish must not block.
type Publisher interface {
	Publish(e Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(e Event)

// Publish calls f(e).
func (f PublisherFunc) Publish(e Event) { f(e) }
