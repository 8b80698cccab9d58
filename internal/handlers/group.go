package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"huru-chat/internal/fanout"
	"huru-chat/internal/repositories"
	"huru-chat/internal/telemetry"
)

// GroupHandler manages group lifecycle endpoints.
type GroupHandler struct {
	groupRepo   repositories.GroupRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	dispatcher  *fanout.Dispatcher
	audit       *telemetry.AuditEmitter
}

// NewGroupHandler builds a GroupHandler.
func NewGroupHandler(
	groupRepo repositories.GroupRepository,
	messageRepo repositories.MessageRepository,
	userRepo repositories.UserRepository,
	dispatcher *fanout.Dispatcher,
	audit *telemetry.AuditEmitter,
) *GroupHandler {
	return &GroupHandler{
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		dispatcher:  dispatcher,
		audit:       audit,
	}
}

func (h *GroupHandler) requireAdmin(c *gin.Context, groupID, userID int) bool {
	isAdmin, err := h.groupRepo.IsAdmin(c.Request.Context(), groupID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return false
	}
	if !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin privileges required"})
		return false
	}
	return true
}

func (h *GroupHandler) callerName(c *gin.Context, userID int) (string, bool) {
	user, err := h.userRepo.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return "", false
	}
	return user.Username, true
}

// Create builds a new group from participant usernames. The creator is
// always included and starts as the sole admin.
func (h *GroupHandler) Create(c *gin.Context) {
	var req struct {
		Name         string   `json:"name" binding:"required"`
		About        string   `json:"about"`
		Participants []string `json:"participants"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	participantIDs := make([]int, 0, len(req.Participants))
	if len(req.Participants) > 0 {
		users, err := h.userRepo.ResolveUsernames(c.Request.Context(), req.Participants)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "one or more participants do not exist"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve participants"})
			return
		}
		for _, u := range users {
			participantIDs = append(participantIDs, u.ID)
		}
	}

	snapshot, err := h.groupRepo.CreateGroup(c.Request.Context(), userID, req.Name, req.About, participantIDs)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateGroupName) {
			c.JSON(http.StatusConflict, gin.H{"error": "you already own a group with this name"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	if creatorName, ok := h.callerName(c, userID); ok {
		h.dispatcher.Dispatch(c.Request.Context(), userID, nil, fanout.GroupCreated(snapshot, userID, creatorName))
	}
	h.audit.Emit(c.Request.Context(), "info", fmt.Sprintf("group %q created", req.Name), c.GetString("requestID"), &userID)

	c.JSON(http.StatusCreated, gin.H{"group": snapshot.Group, "participants": snapshot.Participants})
}

// Get returns a group with its participant and admin sets.
func (h *GroupHandler) Get(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	snapshot, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"group":        snapshot.Group,
		"participants": snapshot.Participants,
		"admins":       snapshot.Admins,
	})
}

// ListForUser returns the groups the caller belongs to.
func (h *GroupHandler) ListForUser(c *gin.Context) {
	userID := c.GetInt("userID")

	groups, err := h.groupRepo.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// History returns the group's append-only action log.
func (h *GroupHandler) History(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a group participant"})
		return
	}

	entries, err := h.groupRepo.History(c.Request.Context(), groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// Participants returns the group's participant user records.
func (h *GroupHandler) Participants(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	snapshot, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	users, err := h.userRepo.BulkUsers(c.Request.Context(), snapshot.Participants)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load participants"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": users})
}

// AddParticipant adds a single user to the group. Admin only.
func (h *GroupHandler) AddParticipant(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if !h.requireAdmin(c, groupID, userID) {
		return
	}

	target, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user does not exist"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	actorName, ok := h.callerName(c, userID)
	if !ok {
		return
	}

	action := fmt.Sprintf("%s added %s to the group", actorName, target.Username)
	if err := h.groupRepo.AddParticipant(c.Request.Context(), groupID, target.ID, action, userID); err != nil {
		if errors.Is(err, repositories.ErrAlreadyMember) {
			c.JSON(http.StatusConflict, gin.H{"error": "user is already a participant"})
			return
		}
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add participant"})
		return
	}

	snapshot, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err == nil {
		h.dispatcher.Dispatch(c.Request.Context(), userID, nil, fanout.ParticipantsAdded(snapshot.Group.Name, actorName, []int{target.ID}))
	}

	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

// AddParticipants adds a batch of users, silently skipping anyone who is
// already a participant. Admin only.
func (h *GroupHandler) AddParticipants(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	var req struct {
		Usernames []string `json:"usernames" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if !h.requireAdmin(c, groupID, userID) {
		return
	}

	users, err := h.userRepo.ResolveUsernames(c.Request.Context(), req.Usernames)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "one or more users do not exist"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve users"})
		return
	}

	actorName, ok := h.callerName(c, userID)
	if !ok {
		return
	}

	userIDs := make([]int, 0, len(users))
	for _, u := range users {
		userIDs = append(userIDs, u.ID)
	}

	action := fmt.Sprintf("%s added a participant", actorName)
	added, err := h.groupRepo.AddParticipants(c.Request.Context(), groupID, userIDs, action, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add participants"})
		return
	}

	if len(added) > 0 {
		snapshot, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
		if err == nil {
			h.dispatcher.Dispatch(c.Request.Context(), userID, nil, fanout.ParticipantsAdded(snapshot.Group.Name, actorName, added))
		}
	}

	c.JSON(http.StatusOK, gin.H{"added": added})
}

// PromoteAdmin flags an existing participant as admin. Admin only.
func (h *GroupHandler) PromoteAdmin(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if !h.requireAdmin(c, groupID, userID) {
		return
	}

	target, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user does not exist"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	actorName, ok := h.callerName(c, userID)
	if !ok {
		return
	}

	action := fmt.Sprintf("%s made %s an admin", actorName, target.Username)
	if err := h.groupRepo.PromoteAdmin(c.Request.Context(), groupID, target.ID, action, userID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrAlreadyAdmin):
			c.JSON(http.StatusConflict, gin.H{"error": "user is already an admin"})
		case errors.Is(err, repositories.ErrUserNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "user is not a participant"})
		case errors.Is(err, repositories.ErrGroupNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not promote admin"})
		}
		return
	}

	snapshot, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err == nil {
		h.dispatcher.Dispatch(c.Request.Context(), userID, nil, fanout.AdminPromoted(snapshot.Group.Name, actorName, target.ID))
	}

	c.JSON(http.StatusOK, gin.H{"status": "promoted"})
}

// Leave removes the caller from the group. The sole admin cannot leave
// voluntarily.
func (h *GroupHandler) Leave(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	userID := c.GetInt("userID")
	leaverName, ok := h.callerName(c, userID)
	if !ok {
		return
	}

	action := fmt.Sprintf("%s left the group", leaverName)
	if err := h.groupRepo.Leave(c.Request.Context(), groupID, userID, action); err != nil {
		switch {
		case errors.Is(err, repositories.ErrLastAdminCannotLeave):
			c.JSON(http.StatusConflict, gin.H{"error": "the last admin cannot leave the group"})
		case errors.Is(err, repositories.ErrGroupNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		case errors.Is(err, repositories.ErrUserNotFound):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a group participant"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave group"})
		}
		return
	}

	snapshot, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err == nil {
		h.dispatcher.Dispatch(c.Request.Context(), userID, nil, fanout.ParticipantLeft(snapshot.Group.Name, leaverName, snapshot.Participants, userID))
	}

	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// ForceLeave removes a participant unconditionally, the sole admin
// included. Admin only.
func (h *GroupHandler) ForceLeave(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if !h.requireAdmin(c, groupID, userID) {
		return
	}

	target, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user does not exist"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	actorName, ok := h.callerName(c, userID)
	if !ok {
		return
	}

	action := fmt.Sprintf("%s was forced to leave the group by %s", target.Username, actorName)
	if err := h.groupRepo.ForceLeave(c.Request.Context(), groupID, target.ID, action, userID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrGroupNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		case errors.Is(err, repositories.ErrUserNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "user is not a participant"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove participant"})
		}
		return
	}

	snapshot, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err == nil {
		h.dispatcher.Dispatch(c.Request.Context(), userID, nil,
			fanout.ParticipantForcedOut(snapshot.Group.Name, actorName, target.Username, userID, target.ID, snapshot.Participants))
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// Update changes group metadata. One history entry is recorded describing
// the last field changed in the call. Admin only.
func (h *GroupHandler) Update(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	var req struct {
		Name       *string `json:"name"`
		About      *string `json:"about"`
		PictureURL *string `json:"picture_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == nil && req.About == nil && req.PictureURL == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	userID := c.GetInt("userID")
	if !h.requireAdmin(c, groupID, userID) {
		return
	}

	group, action, err := h.groupRepo.UpdateMetadata(c.Request.Context(), groupID, userID, req.Name, req.About, req.PictureURL)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update group"})
		return
	}

	actorName, ok := h.callerName(c, userID)
	if ok {
		snapshot, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
		if err == nil {
			h.dispatcher.Dispatch(c.Request.Context(), userID, nil, fanout.GroupUpdated(actorName, action, snapshot.Participants, userID))
		}
	}

	c.JSON(http.StatusOK, gin.H{"group": group})
}

// Delete destroys the group and all of its messages. Creator only. Every
// participant, the creator included, receives a system notification.
func (h *GroupHandler) Delete(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	snapshot, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	userID := c.GetInt("userID")
	if snapshot.Group.CreatedBy != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the creator can delete a group"})
		return
	}

	deletedMessages, err := h.messageRepo.DeleteByGroup(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete group messages"})
		return
	}

	if err := h.groupRepo.DeleteGroup(c.Request.Context(), groupID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete group"})
		return
	}

	h.dispatcher.Dispatch(c.Request.Context(), userID, nil, fanout.GroupDeleted(snapshot.Group.Name, snapshot.Participants))
	h.audit.Emit(c.Request.Context(), "info", fmt.Sprintf("group %q deleted", snapshot.Group.Name), c.GetString("requestID"), &userID)

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "messages_deleted": deletedMessages})
}
