package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"huru-chat/internal/models"
)

// NotificationRepository persists fan-out decisions, one record per
// (event, recipient).
type NotificationRepository interface {
	Create(ctx context.Context, notification models.Notification) (models.Notification, error)
	ListForUser(ctx context.Context, userID int) ([]models.Notification, error)
	Get(ctx context.Context, notificationID int) (models.Notification, error)
	MarkReadAndDelete(ctx context.Context, notificationID int) (models.Notification, error)
}

// NotificationRepo is a sqlx-backed implementation.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs a NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

const notificationColumns = `id, sender_id, recipient_id, message_id, text, kind, read, created_at`

// Create stores a notification record.
func (r *NotificationRepo) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.Kind == "" {
		n.Kind = models.NotificationKindMessage
	}
	var stored models.Notification
	err := r.db.QueryRowxContext(ctx, `INSERT INTO notifications (sender_id, recipient_id, message_id, text, kind)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+notificationColumns,
		n.SenderID, n.RecipientID, n.MessageID, n.Text, n.Kind).
		StructScan(&stored)
	return stored, err
}

// ListForUser returns the user's notifications, newest first.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID int) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.db.SelectContext(ctx, &notifications, `SELECT `+notificationColumns+` FROM notifications WHERE recipient_id=$1 ORDER BY created_at DESC`, userID)
	return notifications, err
}

// Get fetches a single notification.
func (r *NotificationRepo) Get(ctx context.Context, notificationID int) (models.Notification, error) {
	var n models.Notification
	err := r.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, notificationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return n, err
}

// MarkReadAndDelete acknowledges a notification by removing it. Reading a
// notification destroys it; there is no archive.
func (r *NotificationRepo) MarkReadAndDelete(ctx context.Context, notificationID int) (models.Notification, error) {
	var n models.Notification
	err := r.db.QueryRowxContext(ctx, `DELETE FROM notifications WHERE id=$1 RETURNING `+notificationColumns, notificationID).
		StructScan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	return n, err
}
