package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"huru-chat/internal/fanout"
	"huru-chat/internal/models"
	"huru-chat/internal/repositories"
	"huru-chat/internal/telemetry"
	"huru-chat/internal/ws"
)

var attachmentKinds = map[string]bool{
	"image": true,
	"video": true,
	"file":  true,
}

// MessageHandler manages message endpoints.
type MessageHandler struct {
	messageRepo repositories.MessageRepository
	groupRepo   repositories.GroupRepository
	userRepo    repositories.UserRepository
	dispatcher  *fanout.Dispatcher
	hub         *ws.Hub
	audit       *telemetry.AuditEmitter
	editWindow  time.Duration
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(
	messageRepo repositories.MessageRepository,
	groupRepo repositories.GroupRepository,
	userRepo repositories.UserRepository,
	dispatcher *fanout.Dispatcher,
	hub *ws.Hub,
	audit *telemetry.AuditEmitter,
	editWindow time.Duration,
) *MessageHandler {
	return &MessageHandler{
		messageRepo: messageRepo,
		groupRepo:   groupRepo,
		userRepo:    userRepo,
		dispatcher:  dispatcher,
		hub:         hub,
		audit:       audit,
		editWindow:  editWindow,
	}
}

// buildContext assembles the snapshot the fan-out engine decides from.
func (h *MessageHandler) buildContext(ctx context.Context, msg models.Message) (fanout.MessageContext, error) {
	sender, err := h.userRepo.GetUser(ctx, msg.SenderID)
	if err != nil {
		return fanout.MessageContext{}, err
	}

	mc := fanout.MessageContext{Message: msg, SenderName: sender.Username}

	if msg.IsGroup && msg.GroupID != nil {
		snapshot, err := h.groupRepo.GetGroup(ctx, *msg.GroupID)
		if err != nil {
			return fanout.MessageContext{}, err
		}
		mc.Group = &snapshot
	}

	if msg.IsReply && msg.RepliedTo != nil {
		original, err := h.messageRepo.GetMessage(ctx, *msg.RepliedTo)
		if err != nil {
			return fanout.MessageContext{}, err
		}
		originalSender, err := h.userRepo.GetUser(ctx, original.SenderID)
		if err != nil {
			return fanout.MessageContext{}, err
		}
		mc.RepliedTo = &original
		mc.RepliedToSenderName = originalSender.Username
	}

	return mc, nil
}

// Send stores a new direct or group message and runs the new-message
// fan-out. Group recipients are snapshotted at send time: the current
// participant set minus the sender.
func (h *MessageHandler) Send(c *gin.Context) {
	var req struct {
		Recipients  []int                 `json:"recipients"`
		GroupID     *int                  `json:"group_id"`
		Body        string                `json:"body"`
		Attachments models.AttachmentList `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Body == "" && len(req.Attachments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message requires a body or attachments"})
		return
	}
	for _, attachment := range req.Attachments {
		if !attachmentKinds[attachment.Kind] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment kind"})
			return
		}
	}

	userID := c.GetInt("userID")
	input := repositories.NewMessageInput{
		SenderID:    userID,
		Body:        req.Body,
		Attachments: req.Attachments,
	}

	if req.GroupID != nil {
		snapshot, err := h.groupRepo.GetGroup(c.Request.Context(), *req.GroupID)
		if err != nil {
			if errors.Is(err, repositories.ErrGroupNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
			return
		}
		member := false
		recipients := make([]int, 0, len(snapshot.Participants))
		for _, id := range snapshot.Participants {
			if id == userID {
				member = true
				continue
			}
			recipients = append(recipients, id)
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a group participant"})
			return
		}
		input.GroupID = req.GroupID
		input.IsGroup = true
		input.Recipients = recipients
	} else {
		if len(req.Recipients) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recipients required"})
			return
		}
		input.Recipients = req.Recipients
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store message"})
		return
	}

	mc, err := h.buildContext(c.Request.Context(), msg)
	if err == nil {
		if _, err := h.dispatcher.FanOutNewMessage(c.Request.Context(), mc); err != nil {
			h.audit.Emit(c.Request.Context(), "error", "new message fan-out failed", c.GetString("requestID"), &userID)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// Reply stores a reply to an earlier message. The reply targets the
// original sender and inherits the original's group scope.
func (h *MessageHandler) Reply(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Body        string                `json:"body"`
		Attachments models.AttachmentList `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Body == "" && len(req.Attachments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message requires a body or attachments"})
		return
	}

	original, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	userID := c.GetInt("userID")
	input := repositories.NewMessageInput{
		SenderID:    userID,
		GroupID:     original.GroupID,
		Recipients:  []int{original.SenderID},
		Body:        req.Body,
		Attachments: req.Attachments,
		IsGroup:     original.IsGroup,
		IsReply:     true,
		RepliedTo:   &original.ID,
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store message"})
		return
	}

	mc, err := h.buildContext(c.Request.Context(), msg)
	if err == nil {
		if _, err := h.dispatcher.FanOutNewMessage(c.Request.Context(), mc); err != nil {
			h.audit.Emit(c.Request.Context(), "error", "reply fan-out failed", c.GetString("requestID"), &userID)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// Edit updates a message body within the edit window and re-notifies the
// recipients.
func (h *MessageHandler) Edit(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	userID := c.GetInt("userID")
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can edit a message"})
		return
	}

	now := time.Now()
	// Inclusive window: an edit exactly at the boundary is still allowed.
	if now.Sub(msg.DateSent) > h.editWindow {
		c.JSON(http.StatusForbidden, gin.H{"error": "edit window expired"})
		return
	}

	updated, err := h.messageRepo.EditMessage(c.Request.Context(), messageID, req.Body, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not edit message"})
		return
	}
	updated.Recipients = msg.Recipients

	if mc, err := h.buildContext(c.Request.Context(), updated); err == nil {
		h.dispatcher.FanOutEdited(c.Request.Context(), mc)
	}

	c.JSON(http.StatusOK, gin.H{"message": updated})
}

// Delete soft-deletes a message and notifies its recipients.
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	userID := c.GetInt("userID")
	if msg.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender can delete a message"})
		return
	}

	if err := h.messageRepo.SoftDelete(c.Request.Context(), messageID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete message"})
		return
	}

	if mc, err := h.buildContext(c.Request.Context(), msg); err == nil {
		h.dispatcher.FanOutDeleted(c.Request.Context(), mc)
	}
	h.hub.BroadcastMessageDeleted(msg.Recipients, messageID)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// React appends a reaction and notifies the owner or the other group
// participants.
func (h *MessageHandler) React(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messageRepo.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	userID := c.GetInt("userID")
	reaction, err := h.messageRepo.AddReaction(c.Request.Context(), messageID, userID, req.Emoji)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store reaction"})
		return
	}

	if mc, err := h.buildContext(c.Request.Context(), msg); err == nil {
		reactor, err := h.userRepo.GetUser(c.Request.Context(), userID)
		if err == nil {
			h.dispatcher.FanOutReaction(c.Request.Context(), mc, userID, reactor.Username, req.Emoji)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"reaction": reaction})
}

// MarkReceived appends a received receipt for the caller.
func (h *MessageHandler) MarkReceived(c *gin.Context) {
	h.markReceipt(c, models.ReceiptReceived)
}

// MarkRead appends a read receipt for the caller.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	h.markReceipt(c, models.ReceiptRead)
}

func (h *MessageHandler) markReceipt(c *gin.Context, kind string) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	userID := c.GetInt("userID")
	isRecipient, err := h.messageRepo.IsRecipient(c.Request.Context(), messageID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	if !isRecipient {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a recipient of this message"})
		return
	}

	if err := h.messageRepo.AddReceipt(c.Request.Context(), messageID, userID, kind); err != nil {
		if errors.Is(err, repositories.ErrAlreadyAcknowledged) {
			c.JSON(http.StatusConflict, gin.H{"error": "already acknowledged"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store receipt"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": kind})
}

// List returns every message visible to the caller.
func (h *MessageHandler) List(c *gin.Context) {
	userID := c.GetInt("userID")

	messages, err := h.messageRepo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ListUnread returns messages addressed to the caller without a read
// receipt from them.
func (h *MessageHandler) ListUnread(c *gin.Context) {
	userID := c.GetInt("userID")

	messages, err := h.messageRepo.ListUnread(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ListNotReceived returns messages addressed to the caller without a
// received receipt from them.
func (h *MessageHandler) ListNotReceived(c *gin.Context) {
	userID := c.GetInt("userID")

	messages, err := h.messageRepo.ListNotReceived(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ListByAttachmentKind returns the caller's visible messages that carry an
// attachment of the given kind.
func (h *MessageHandler) ListByAttachmentKind(c *gin.Context) {
	kind := c.Param("kind")
	if !attachmentKinds[kind] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment kind"})
		return
	}

	userID := c.GetInt("userID")
	messages, err := h.messageRepo.ListByAttachmentKind(c.Request.Context(), userID, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Search runs a case-insensitive substring search over bodies of messages
// the caller can see.
func (h *MessageHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query required"})
		return
	}

	userID := c.GetInt("userID")
	messages, err := h.messageRepo.Search(c.Request.Context(), userID, query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ArchiveAll archives every message the caller sent.
func (h *MessageHandler) ArchiveAll(c *gin.Context) {
	userID := c.GetInt("userID")

	count, err := h.messageRepo.SetArchivedForUser(c.Request.Context(), userID, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not archive messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": count})
}

// RestoreArchived un-archives every message the caller sent.
func (h *MessageHandler) RestoreArchived(c *gin.Context) {
	userID := c.GetInt("userID")

	count, err := h.messageRepo.SetArchivedForUser(c.Request.Context(), userID, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not restore messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": count})
}

// DeleteAll soft-deletes every message the caller sent.
func (h *MessageHandler) DeleteAll(c *gin.Context) {
	userID := c.GetInt("userID")

	count, err := h.messageRepo.SoftDeleteAllForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": count})
}
