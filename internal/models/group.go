package models

import "time"

// Group represents a chat group.
type Group struct {
	ID         int       `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	About      string    `db:"about" json:"about"`
	PictureURL string    `db:"picture_url" json:"picture_url,omitempty"`
	CreatedBy  int       `db:"created_by" json:"created_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// GroupMember links a user to a group; admins are flagged members.
type GroupMember struct {
	GroupID int  `db:"group_id" json:"group_id"`
	UserID  int  `db:"user_id" json:"user_id"`
	IsAdmin bool `db:"is_admin" json:"is_admin"`
}

// GroupSnapshot bundles a group with its current membership, as read at a
// single point in time. Fan-out decisions use this, never live lookups.
type GroupSnapshot struct {
	Group        Group
	Participants []int
	Admins       []int
}

// HistoryEntry is one line of a group's append-only history log.
type HistoryEntry struct {
	ID         int       `db:"id" json:"id"`
	GroupID    int       `db:"group_id" json:"group_id"`
	Action     string    `db:"action" json:"action"`
	ActorID    *int      `db:"actor_id" json:"actor_id,omitempty"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}
