package model

import "time"

// Notification channels a recipient can be reached on.
const (
	ChannelLine     = "line"
	ChannelWebPush  = "webpush"
	ChannelTelegram = "telegram"
)

// Recipient is a notification destination discovered from inbound traffic.
// For Web Push recipients TargetID is the subscription endpoint.
type Recipient struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TargetID  string    `gorm:"uniqueIndex;size:512;not null" json:"targetId"`
	Label     string    `gorm:"size:256" json:"label"`
	Channel   string    `gorm:"size:16;not null;default:line" json:"channel"`
	P256DH    string    `gorm:"column:p256dh;size:256" json:"-"`
	Auth      string    `gorm:"size:256" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}

// TableName pins the table name to "recipients".
func (Recipient) TableName() string { return "recipients" }
