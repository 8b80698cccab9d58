package rabbitmq

import (
	"context"

	"huru-chat/internal/models"
)

// NotifyChannel publishes stored notifications to the broker so downstream
// consumers (push gateways, analytics) can react to them.
type NotifyChannel struct {
	publisher  Publisher
	routingKey string
}

// NewNotifyChannel constructs a NotifyChannel.
func NewNotifyChannel(publisher Publisher, routingKey string) *NotifyChannel {
	return &NotifyChannel{publisher: publisher, routingKey: routingKey}
}

// Deliver publishes the notification as a JSON event.
func (c *NotifyChannel) Deliver(ctx context.Context, notification models.Notification) error {
	return c.publisher.Publish(ctx, c.routingKey, notification)
}
