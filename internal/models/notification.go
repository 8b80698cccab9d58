package models

import "time"

// Notification kinds.
const (
	NotificationKindMessage = "message"
	NotificationKindSystem  = "system"
)

// Notification is one fan-out decision: a single (event, recipient) record.
// It is created only by the fan-out dispatcher and deleted when the
// recipient marks it read.
type Notification struct {
	ID          int       `db:"id" json:"id"`
	SenderID    int       `db:"sender_id" json:"sender_id"`
	RecipientID int       `db:"recipient_id" json:"recipient_id"`
	MessageID   *int      `db:"message_id" json:"message_id,omitempty"`
	Text        string    `db:"text" json:"text"`
	Kind        string    `db:"kind" json:"kind"`
	Read        bool      `db:"read" json:"read"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
