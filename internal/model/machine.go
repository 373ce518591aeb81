package model

import "time"

// MachineKind distinguishes washers from dryers.
type MachineKind string

const (
	KindWashing MachineKind = "washing"
	KindDryer   MachineKind = "dryer"
)

// Valid reports whether k is a known machine kind.
func (k MachineKind) Valid() bool {
	return k == KindWashing || k == KindDryer
}

// MachineStatus is the lifecycle state of a machine.
type MachineStatus string

const (
	StatusAvailable    MachineStatus = "available"
	StatusInUse        MachineStatus = "in-use"
	StatusOutOfService MachineStatus = "out-of-service"
)

// Valid reports whether s is a known machine status.
func (s MachineStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusInUse, StatusOutOfService:
		return true
	}
	return false
}

// Machine represents a washing machine or dryer and its current run.
//
// RemainingSeconds is non-nil exactly when Status is StatusInUse.
type Machine struct {
	ID                 string        `gorm:"primaryKey;size:32" json:"id"`
	Kind               MachineKind   `gorm:"size:16;not null" json:"kind"`
	Capacity           string        `gorm:"size:16;not null" json:"capacity"`
	Status             MachineStatus `gorm:"size:24;not null;index" json:"status"`
	RemainingSeconds   *int          `json:"remainingSeconds"`
	NotifiedAlmostDone bool          `gorm:"not null" json:"notifiedAlmostDone"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

// TableName pins the table name to "machines".
func (Machine) TableName() string { return "machines" }

// Remaining returns the remaining seconds or 0 when the machine is not running.
func (m Machine) Remaining() int {
	if m.RemainingSeconds == nil {
		return 0
	}
	return *m.RemainingSeconds
}

// InUse returns a copy of m in a fresh run of the given length.
func (m Machine) InUse(durationSeconds int) Machine {
	d := durationSeconds
	m.Status = StatusInUse
	m.RemainingSeconds = &d
	m.NotifiedAlmostDone = false
	return m
}

// Idle returns a copy of m moved to status s with the run state cleared.
func (m Machine) Idle(s MachineStatus) Machine {
	m.Status = s
	m.RemainingSeconds = nil
	m.NotifiedAlmostDone = false
	return m
}

// SameState reports whether m and o agree on status, remaining time and the
// notification flag.
func (m Machine) SameState(o Machine) bool {
	if m.Status != o.Status || m.NotifiedAlmostDone != o.NotifiedAlmostDone {
		return false
	}
	if (m.RemainingSeconds == nil) != (o.RemainingSeconds == nil) {
		return false
	}
	return m.RemainingSeconds == nil || *m.RemainingSeconds == *o.RemainingSeconds
}

// Clone returns a deep copy of m.
func (m Machine) Clone() Machine {
	if m.RemainingSeconds != nil {
		r := *m.RemainingSeconds
		m.RemainingSeconds = &r
	}
	return m
}
