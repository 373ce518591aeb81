package notification

import (
	"fmt"

	"laundromat-backend/internal/event"
	"laundromat-backend/internal/model"
)

// Message is the channel-neutral content of a notification.
type Message struct {
	Title            string     `json:"title"`
	Text             string     `json:"message"`
	Kind             event.Kind `json:"kind,omitempty"`
	MachineID        string     `json:"machineId,omitempty"`
	RemainingSeconds int        `json:"remainingSeconds,omitempty"`
}

// FromEvent renders the notification for a machine event.
func FromEvent(e event.Event) Message {
	label := kindLabel(e.MachineKind)
	msg := Message{
		Kind:             e.Kind,
		MachineID:        e.MachineID,
		RemainingSeconds: e.RemainingSeconds,
	}
	switch e.Kind {
	case event.KindAlmostDone:
		msg.Title = "Almost done"
		msg.Text = fmt.Sprintf("%s %s: %s remaining", label, e.MachineID, displayTime(e.RemainingSeconds))
	case event.KindFinished:
		msg.Title = "Finished"
		msg.Text = fmt.Sprintf("%s %s: finished", label, e.MachineID)
	default:
		msg.Title = string(e.Kind)
		msg.Text = fmt.Sprintf("%s %s: %s", label, e.MachineID, e.Kind)
	}
	return msg
}

// Text builds a free-form broadcast message.
func Text(text string) Message {
	return Message{Title: "Laundromat", Text: text}
}

func kindLabel(k model.MachineKind) string {
	if k == model.KindDryer {
		return "Dryer"
	}
	return "Washing machine"
}

// displayTime rounds up to whole minutes from one minute on.
func displayTime(seconds int) string {
	if seconds >= 60 {
		minutes := (seconds + 59) / 60
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if seconds == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", seconds)
}
