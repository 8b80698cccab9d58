package fanout

import (
	"fmt"

	"huru-chat/internal/models"
)

// Notice is one fan-out decision: a recipient and the text they should see.
type Notice struct {
	RecipientID int
	Text        string
	Kind        string
}

// MessageContext is the snapshot a fan-out decision is computed from. All
// lookups happen before the engine runs; the engine itself is pure.
type MessageContext struct {
	Message    models.Message
	SenderName string
	// Group is set iff the message is a group message, snapshotted at
	// dispatch time.
	Group *models.GroupSnapshot
	// RepliedTo and RepliedToSenderName are set iff the message is a reply.
	RepliedTo           *models.Message
	RepliedToSenderName string
}

// NewMessage computes the notices for a freshly persisted message. The
// sender never receives a notice about their own message.
func NewMessage(mc MessageContext) []Notice {
	msg := mc.Message

	if msg.IsReply {
		if msg.IsGroup && mc.Group != nil {
			var text string
			if mc.RepliedTo != nil && msg.SenderID == mc.RepliedTo.SenderID {
				text = fmt.Sprintf("[%s] : %s replied chat: %q", mc.Group.Group.Name, mc.SenderName, msg.Body)
			} else {
				text = fmt.Sprintf("[%s] : %s replied to %s's chat", mc.Group.Group.Name, mc.SenderName, mc.RepliedToSenderName)
			}
			return noticesFor(excluding(mc.Group.Participants, msg.SenderID), text, models.NotificationKindMessage)
		}
		text := fmt.Sprintf("%s replied to your chat: '%s'", mc.SenderName, msg.Body)
		return noticesFor(msg.Recipients, text, models.NotificationKindMessage)
	}

	if msg.IsGroup && mc.Group != nil {
		text := fmt.Sprintf("[%s]: %s has sent a message: '%s'", mc.Group.Group.Name, mc.SenderName, msg.Body)
		return noticesFor(excluding(msg.Recipients, msg.SenderID), text, models.NotificationKindMessage)
	}

	text := fmt.Sprintf("%s has sent you a message: '%s'", mc.SenderName, msg.Body)
	return noticesFor(msg.Recipients, text, models.NotificationKindMessage)
}

// Reaction computes the notices for a reaction append. Direct messages
// notify only the message owner (never the reactor themselves); group
// messages notify every other current participant.
func Reaction(mc MessageContext, reactorID int, reactorName, emoji string) []Notice {
	msg := mc.Message

	if msg.IsGroup && mc.Group != nil {
		text := fmt.Sprintf("[%s] `%s` reacted to the message: '%s' in the group chat.", mc.Group.Group.Name, reactorName, emoji)
		return noticesFor(excluding(mc.Group.Participants, reactorID), text, models.NotificationKindMessage)
	}

	if reactorID == msg.SenderID {
		return nil
	}
	text := fmt.Sprintf("You received a reaction from `%s` on your message: %s", reactorName, emoji)
	return []Notice{{RecipientID: msg.SenderID, Text: text, Kind: models.NotificationKindMessage}}
}

// Edited computes the notices for an edited message. This trigger is not
// guarded by the new-message flag: every successful edit notifies again.
func Edited(mc MessageContext) []Notice {
	msg := mc.Message

	text := fmt.Sprintf("A message has been edited: '%s'", msg.Body)
	if msg.IsGroup && mc.Group != nil {
		text = fmt.Sprintf("[%s] %s", mc.Group.Group.Name, text)
		return noticesFor(excluding(msg.Recipients, msg.SenderID), text, models.NotificationKindMessage)
	}
	return noticesFor(msg.Recipients, text, models.NotificationKindMessage)
}

// Deleted computes the notices for a soft-deleted message.
func Deleted(mc MessageContext) []Notice {
	return noticesFor(mc.Message.Recipients, "A message has been deleted", models.NotificationKindMessage)
}

// GroupCreated notifies every initial participant except the creator.
func GroupCreated(snapshot models.GroupSnapshot, creatorID int, creatorName string) []Notice {
	text := fmt.Sprintf("%s added you to the group: %s", creatorName, snapshot.Group.Name)
	return noticesFor(excluding(snapshot.Participants, creatorID), text, models.NotificationKindSystem)
}

// ParticipantsAdded notifies each newly added participant.
func ParticipantsAdded(groupName, actorName string, addedIDs []int) []Notice {
	text := fmt.Sprintf("%s added you to the group: %s", actorName, groupName)
	return noticesFor(addedIDs, text, models.NotificationKindSystem)
}

// AdminPromoted notifies the promoted participant.
func AdminPromoted(groupName, actorName string, promotedID int) []Notice {
	text := fmt.Sprintf("%s made you an admin in the group: %s", actorName, groupName)
	return []Notice{{RecipientID: promotedID, Text: text, Kind: models.NotificationKindSystem}}
}

// ParticipantLeft notifies the remaining participants.
func ParticipantLeft(groupName, leaverName string, remaining []int, leaverID int) []Notice {
	text := fmt.Sprintf("%s left the group: %s", leaverName, groupName)
	return noticesFor(excluding(remaining, leaverID), text, models.NotificationKindSystem)
}

// ParticipantForcedOut notifies the removed participant and, separately,
// every remaining participant except the acting admin.
func ParticipantForcedOut(groupName, actorName, targetName string, actorID, targetID int, remaining []int) []Notice {
	notices := []Notice{{
		RecipientID: targetID,
		Text:        fmt.Sprintf("You were forced to leave the group: %s by %s", groupName, actorName),
		Kind:        models.NotificationKindSystem,
	}}
	text := fmt.Sprintf("%s was forced to leave the group: %s by %s", targetName, groupName, actorName)
	for _, id := range remaining {
		if id == actorID || id == targetID {
			continue
		}
		notices = append(notices, Notice{RecipientID: id, Text: text, Kind: models.NotificationKindSystem})
	}
	return notices
}

// GroupUpdated notifies every participant except the actor about a metadata
// change; action is the history description of the last changed field.
func GroupUpdated(actorName, action string, participants []int, actorID int) []Notice {
	text := fmt.Sprintf("%s updated group details: %s", actorName, action)
	return noticesFor(excluding(participants, actorID), text, models.NotificationKindSystem)
}

// GroupDeleted notifies every participant, the creator included.
func GroupDeleted(groupName string, participants []int) []Notice {
	text := fmt.Sprintf("The group %q has been deleted.", groupName)
	return noticesFor(participants, text, models.NotificationKindSystem)
}

func noticesFor(recipients []int, text, kind string) []Notice {
	notices := make([]Notice, 0, len(recipients))
	for _, id := range recipients {
		notices = append(notices, Notice{RecipientID: id, Text: text, Kind: kind})
	}
	return notices
}

func excluding(ids []int, excluded int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != excluded {
			out = append(out, id)
		}
	}
	return out
}
