package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Attachment is a (kind, url) pair stored alongside a message. The url is
// opaque; the service never inspects the content behind it.
type Attachment struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// AttachmentList marshals to a JSONB column.
type AttachmentList []Attachment

// Value implements driver.Valuer.
func (a AttachmentList) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *AttachmentList) Scan(src interface{}) error {
	switch data := src.(type) {
	case []byte:
		return json.Unmarshal(data, a)
	case string:
		return json.Unmarshal([]byte(data), a)
	case nil:
		*a = nil
		return nil
	default:
		return errors.New("attachments: unsupported scan type")
	}
}

// Message represents a chat message. Recipients are snapshotted at send
// time; later group membership changes never rewrite them.
type Message struct {
	ID           int            `db:"id" json:"id"`
	SenderID     int            `db:"sender_id" json:"sender_id"`
	GroupID      *int           `db:"group_id" json:"group_id,omitempty"`
	Body         string         `db:"body" json:"body"`
	Attachments  AttachmentList `db:"attachments" json:"attachments"`
	IsGroup      bool           `db:"is_group" json:"is_group"`
	IsReply      bool           `db:"is_reply" json:"is_reply"`
	RepliedTo    *int           `db:"replied_to" json:"replied_to,omitempty"`
	Edited       bool           `db:"edited" json:"edited"`
	LastEditedAt *time.Time     `db:"last_edited_at" json:"last_edited_at,omitempty"`
	FanoutDone   bool           `db:"fanout_done" json:"-"`
	Deleted      bool           `db:"deleted" json:"deleted"`
	Archived     bool           `db:"archived" json:"archived"`
	DateSent     time.Time      `db:"date_sent" json:"date_sent"`

	Recipients []int      `db:"-" json:"recipients,omitempty"`
	ReceivedBy []Receipt  `db:"-" json:"received_by,omitempty"`
	ReadBy     []Receipt  `db:"-" json:"read_by,omitempty"`
	Reactions  []Reaction `db:"-" json:"reactions,omitempty"`
}

// Receipt kinds.
const (
	ReceiptReceived = "received"
	ReceiptRead     = "read"
)

// Receipt records that a user received or read a message.
type Receipt struct {
	MessageID int       `db:"message_id" json:"-"`
	UserID    int       `db:"user_id" json:"user_id"`
	At        time.Time `db:"at" json:"at"`
}

// Reaction is one (emoji, user) append. Identical pairs may repeat.
type Reaction struct {
	ID        int       `db:"id" json:"id"`
	MessageID int       `db:"message_id" json:"-"`
	UserID    int       `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	At        time.Time `db:"at" json:"at"`
}

// NotifyEvent is pushed over websocket connections.
type NotifyEvent struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
	MessageID    int           `json:"message_id,omitempty"`
}
