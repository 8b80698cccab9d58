package fanout

import (
	"context"
	"log"

	"huru-chat/internal/models"
	"huru-chat/internal/observability"
	"huru-chat/internal/repositories"
)

// Channel is a best-effort delivery side channel (websocket broadcast,
// AMQP publish, email). Failures are logged, never propagated.
type Channel interface {
	Deliver(ctx context.Context, notification models.Notification) error
}

// Dispatcher turns engine notices into stored notification records and
// pushes them through the delivery channels. Writes are independent per
// recipient: one failed write neither rolls back the triggering mutation
// nor blocks the remaining recipients.
type Dispatcher struct {
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	channels      []Channel
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(messages repositories.MessageRepository, notifications repositories.NotificationRepository, channels ...Channel) *Dispatcher {
	return &Dispatcher{messages: messages, notifications: notifications, channels: channels}
}

// FanOutNewMessage runs the new-message fan-out exactly once per message.
// The guard flag is claimed with an atomic check-and-set before anything is
// emitted, so two concurrent passes for the same message cannot both fan
// out. Returns whether this call won the claim.
func (d *Dispatcher) FanOutNewMessage(ctx context.Context, mc MessageContext) (bool, error) {
	won, err := d.messages.ClaimFanout(ctx, mc.Message.ID)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}
	messageID := mc.Message.ID
	d.Dispatch(ctx, mc.Message.SenderID, &messageID, NewMessage(mc))
	return true, nil
}

// FanOutEdited notifies about an edit. Unlike the new-message trigger this
// is not guarded: each successful edit notifies the recipients again.
func (d *Dispatcher) FanOutEdited(ctx context.Context, mc MessageContext) {
	messageID := mc.Message.ID
	d.Dispatch(ctx, mc.Message.SenderID, &messageID, Edited(mc))
}

// FanOutReaction notifies about a reaction append.
func (d *Dispatcher) FanOutReaction(ctx context.Context, mc MessageContext, reactorID int, reactorName, emoji string) {
	messageID := mc.Message.ID
	d.Dispatch(ctx, reactorID, &messageID, Reaction(mc, reactorID, reactorName, emoji))
}

// FanOutDeleted notifies the recipients of a soft-deleted message.
func (d *Dispatcher) FanOutDeleted(ctx context.Context, mc MessageContext) {
	messageID := mc.Message.ID
	d.Dispatch(ctx, mc.Message.SenderID, &messageID, Deleted(mc))
}

// Dispatch stores one notification per notice and hands each stored record
// to the side channels, best effort throughout.
func (d *Dispatcher) Dispatch(ctx context.Context, senderID int, messageID *int, notices []Notice) {
	for _, notice := range notices {
		stored, err := d.notifications.Create(ctx, models.Notification{
			SenderID:    senderID,
			RecipientID: notice.RecipientID,
			MessageID:   messageID,
			Text:        notice.Text,
			Kind:        notice.Kind,
		})
		if err != nil {
			log.Printf("fanout: notification write failed recipient=%d: %v", notice.RecipientID, err)
			observability.IncFanoutFailure()
			continue
		}
		observability.IncFanoutNotice(stored.Kind)

		for _, channel := range d.channels {
			if err := channel.Deliver(ctx, stored); err != nil {
				log.Printf("fanout: channel delivery failed recipient=%d: %v", stored.RecipientID, err)
			}
		}
	}
}
