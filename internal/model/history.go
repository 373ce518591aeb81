package model

import "time"

// ActionStart is recorded when a machine run is paid for and started.
const ActionStart = "start"

// HistoryEntry is an append-only audit record of a paid machine action.
type HistoryEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MachineID string    `gorm:"size:32;not null;index" json:"machineId"`
	Action    string    `gorm:"size:32;not null" json:"action"`
	Price     int64     `gorm:"not null" json:"price"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
}

// TableName pins the table name to "history".
func (HistoryEntry) TableName() string { return "history" }
