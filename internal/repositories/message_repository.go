package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"huru-chat/internal/models"
)

const (
	messageColumns         = `id, sender_id, group_id, body, attachments, is_group, is_reply, replied_to, edited, last_edited_at, fanout_done, deleted, archived, date_sent`
	messageColumnsPrefixed = `m.id, m.sender_id, m.group_id, m.body, m.attachments, m.is_group, m.is_reply, m.replied_to, m.edited, m.last_edited_at, m.fanout_done, m.deleted, m.archived, m.date_sent`
)

// NewMessageInput carries everything needed to persist a message. The
// recipient list is the snapshot fixed at send time.
type NewMessageInput struct {
	SenderID    int
	GroupID     *int
	Recipients  []int
	Body        string
	Attachments models.AttachmentList
	IsGroup     bool
	IsReply     bool
	RepliedTo   *int
}

// SweepCandidate is one message considered by the retention sweeper:
// its recipient snapshot and, per recipient, the read timestamp if any.
type SweepCandidate struct {
	MessageID  int
	Recipients []int
	ReadAt     map[int]time.Time
}

// MessageRepository defines interactions for messages and their
// delivery/read/reaction sub-state.
type MessageRepository interface {
	CreateMessage(ctx context.Context, input NewMessageInput) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ClaimFanout(ctx context.Context, messageID int) (bool, error)
	EditMessage(ctx context.Context, messageID int, body string, editedAt time.Time) (models.Message, error)
	SoftDelete(ctx context.Context, messageID int) error
	AddReaction(ctx context.Context, messageID, userID int, emoji string) (models.Reaction, error)
	AddReceipt(ctx context.Context, messageID, userID int, kind string) error
	IsRecipient(ctx context.Context, messageID, userID int) (bool, error)
	ListForUser(ctx context.Context, userID int) ([]models.Message, error)
	ListUnread(ctx context.Context, userID int) ([]models.Message, error)
	ListNotReceived(ctx context.Context, userID int) ([]models.Message, error)
	ListByAttachmentKind(ctx context.Context, userID int, kind string) ([]models.Message, error)
	Search(ctx context.Context, userID int, query string) ([]models.Message, error)
	SetArchivedForUser(ctx context.Context, userID int, archived bool) (int64, error)
	SoftDeleteAllForUser(ctx context.Context, userID int) (int64, error)
	DeleteByGroup(ctx context.Context, groupID int) (int64, error)
	ListSweepCandidates(ctx context.Context) ([]SweepCandidate, error)
	HardDelete(ctx context.Context, messageID int) error
}

// MessageRepo is a sqlx-backed implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message and its recipient snapshot atomically.
func (r *MessageRepo) CreateMessage(ctx context.Context, input NewMessageInput) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, group_id, body, attachments, is_group, is_reply, replied_to)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+messageColumns,
		input.SenderID, input.GroupID, input.Body, input.Attachments, input.IsGroup, input.IsReply, input.RepliedTo).
		StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	for pos, userID := range input.Recipients {
		if _, err = tx.ExecContext(ctx, `INSERT INTO message_recipients (message_id, user_id, position) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, msg.ID, userID, pos); err != nil {
			return models.Message{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}

	msg.Recipients = input.Recipients
	return msg, nil
}

// GetMessage fetches a message with recipients, receipts and reactions.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	if err := r.db.SelectContext(ctx, &msg.Recipients, `SELECT user_id FROM message_recipients WHERE message_id=$1 ORDER BY position`, messageID); err != nil {
		return models.Message{}, err
	}
	if err := r.db.SelectContext(ctx, &msg.ReceivedBy, `SELECT message_id, user_id, at FROM message_receipts WHERE message_id=$1 AND kind=$2 ORDER BY at`, messageID, models.ReceiptReceived); err != nil {
		return models.Message{}, err
	}
	if err := r.db.SelectContext(ctx, &msg.ReadBy, `SELECT message_id, user_id, at FROM message_receipts WHERE message_id=$1 AND kind=$2 ORDER BY at`, messageID, models.ReceiptRead); err != nil {
		return models.Message{}, err
	}
	if err := r.db.SelectContext(ctx, &msg.Reactions, `SELECT id, message_id, user_id, emoji, at FROM message_reactions WHERE message_id=$1 ORDER BY id`, messageID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ClaimFanout flips the fan-out guard flag. It is an atomic check-and-set:
// true means this caller won the claim and must perform the fan-out,
// false means fan-out already happened (or is happening) elsewhere.
func (r *MessageRepo) ClaimFanout(ctx context.Context, messageID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET fanout_done = TRUE WHERE id=$1 AND fanout_done = FALSE`, messageID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// EditMessage replaces the body and records the edit time.
func (r *MessageRepo) EditMessage(ctx context.Context, messageID int, body string, editedAt time.Time) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET body=$2, edited=TRUE, last_edited_at=$3 WHERE id=$1 RETURNING `+messageColumns, messageID, body, editedAt).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDelete marks the message deleted without removing the row.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// AddReaction appends a reaction. Identical (emoji, user) pairs are kept.
func (r *MessageRepo) AddReaction(ctx context.Context, messageID, userID int, emoji string) (models.Reaction, error) {
	var reaction models.Reaction
	err := r.db.QueryRowxContext(ctx, `INSERT INTO message_reactions (message_id, user_id, emoji) VALUES ($1, $2, $3) RETURNING id, message_id, user_id, emoji, at`, messageID, userID, emoji).
		StructScan(&reaction)
	return reaction, err
}

// AddReceipt appends a received/read receipt. The primary key on
// (message_id, user_id, kind) makes the append idempotent without a
// read-then-write window; a conflicting insert reports ErrAlreadyAcknowledged.
func (r *MessageRepo) AddReceipt(ctx context.Context, messageID, userID int, kind string) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_receipts (message_id, user_id, kind) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, messageID, userID, kind)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrAlreadyAcknowledged
	}
	return nil
}

// IsRecipient checks membership in the message's recipient snapshot.
func (r *MessageRepo) IsRecipient(ctx context.Context, messageID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM message_recipients WHERE message_id=$1 AND user_id=$2)`, messageID, userID)
	return exists, err
}

// ListForUser returns messages the user sent or received, newest first.
func (r *MessageRepo) ListForUser(ctx context.Context, userID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT DISTINCT `+messageColumnsPrefixed+` FROM messages m
        LEFT JOIN message_recipients mr ON mr.message_id = m.id
        WHERE m.sender_id=$1 OR mr.user_id=$1
        ORDER BY m.date_sent DESC`, userID)
	return msgs, err
}

// ListUnread returns messages addressed to the user without a read receipt.
func (r *MessageRepo) ListUnread(ctx context.Context, userID int) ([]models.Message, error) {
	return r.listPendingReceipt(ctx, userID, models.ReceiptRead)
}

// ListNotReceived returns messages addressed to the user without a
// received receipt.
func (r *MessageRepo) ListNotReceived(ctx context.Context, userID int) ([]models.Message, error) {
	return r.listPendingReceipt(ctx, userID, models.ReceiptReceived)
}

func (r *MessageRepo) listPendingReceipt(ctx context.Context, userID int, kind string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumnsPrefixed+` FROM messages m
        INNER JOIN message_recipients mr ON mr.message_id = m.id AND mr.user_id=$1
        WHERE NOT EXISTS (
            SELECT 1 FROM message_receipts r
            WHERE r.message_id = m.id AND r.user_id=$1 AND r.kind=$2
        )
        ORDER BY m.date_sent DESC`, userID, kind)
	return msgs, err
}

// ListByAttachmentKind returns the user's messages, optionally filtered to
// those carrying at least one attachment of the given kind.
func (r *MessageRepo) ListByAttachmentKind(ctx context.Context, userID int, kind string) ([]models.Message, error) {
	query := `SELECT DISTINCT ` + messageColumnsPrefixed + ` FROM messages m
        LEFT JOIN message_recipients mr ON mr.message_id = m.id
        WHERE (m.sender_id=$1 OR mr.user_id=$1)`
	args := []interface{}{userID}
	if kind != "" {
		query += ` AND m.attachments @> jsonb_build_array(jsonb_build_object('kind', $2::text))`
		args = append(args, kind)
	}
	query += ` ORDER BY m.date_sent DESC`

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, args...)
	return msgs, err
}

// Search performs a case-insensitive substring search over message bodies,
// scoped to messages the user can see: sent, received, or in one of the
// user's groups.
func (r *MessageRepo) Search(ctx context.Context, userID int, query string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT DISTINCT `+messageColumnsPrefixed+` FROM messages m
        LEFT JOIN message_recipients mr ON mr.message_id = m.id
        LEFT JOIN group_members gm ON gm.group_id = m.group_id
        WHERE m.body ILIKE '%' || $2 || '%'
        AND (m.sender_id=$1 OR mr.user_id=$1 OR gm.user_id=$1)
        ORDER BY m.date_sent DESC`, userID, query)
	return msgs, err
}

// SetArchivedForUser flips the archived flag on every message the user sent
// or received.
func (r *MessageRepo) SetArchivedForUser(ctx context.Context, userID int, archived bool) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET archived=$2 WHERE sender_id=$1
        OR id IN (SELECT message_id FROM message_recipients WHERE user_id=$1)`, userID, archived)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SoftDeleteAllForUser marks every message the user sent or received deleted.
func (r *MessageRepo) SoftDeleteAllForUser(ctx context.Context, userID int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET deleted = TRUE WHERE sender_id=$1
        OR id IN (SELECT message_id FROM message_recipients WHERE user_id=$1)`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByGroup hard-deletes every message belonging to the group.
func (r *MessageRepo) DeleteByGroup(ctx context.Context, groupID int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE group_id=$1`, groupID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListSweepCandidates returns, for every fanned-out message with a
// non-empty recipient snapshot, the recipients and their read timestamps.
// The retention predicate itself is applied by the caller.
func (r *MessageRepo) ListSweepCandidates(ctx context.Context) ([]SweepCandidate, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT mr.message_id, mr.user_id, rc.at
        FROM message_recipients mr
        INNER JOIN messages m ON m.id = mr.message_id AND m.fanout_done = TRUE
        LEFT JOIN message_receipts rc ON rc.message_id = mr.message_id AND rc.user_id = mr.user_id AND rc.kind = 'read'
        ORDER BY mr.message_id, mr.position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []SweepCandidate
	var current *SweepCandidate
	for rows.Next() {
		var messageID, userID int
		var readAt sql.NullTime
		if err := rows.Scan(&messageID, &userID, &readAt); err != nil {
			return nil, err
		}
		if current == nil || current.MessageID != messageID {
			candidates = append(candidates, SweepCandidate{MessageID: messageID, ReadAt: map[int]time.Time{}})
			current = &candidates[len(candidates)-1]
		}
		current.Recipients = append(current.Recipients, userID)
		if readAt.Valid {
			current.ReadAt[userID] = readAt.Time
		}
	}
	return candidates, rows.Err()
}

// HardDelete permanently removes a message and its sub-state.
func (r *MessageRepo) HardDelete(ctx context.Context, messageID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	return err
}
