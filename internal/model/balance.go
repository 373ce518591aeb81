package model

import "time"

// BalanceRowID is the primary key of the single stored-value balance row.
const BalanceRowID = 1

// Balance is the stored-value account used to pay for machine runs.
type Balance struct {
	ID        int       `gorm:"primaryKey;autoIncrement:false"`
	Amount    int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName pins the table name to "balance".
func (Balance) TableName() string { return "balance" }
