package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"huru-chat/internal/models"
	"huru-chat/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, input repositories.NewMessageInput) (models.Message, error) {
	args := m.Called(ctx, input)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ClaimFanout(ctx context.Context, messageID int) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID int, body string, editedAt time.Time) (models.Message, error) {
	args := m.Called(ctx, messageID, body, editedAt)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) AddReaction(ctx context.Context, messageID, userID int, emoji string) (models.Reaction, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	var reaction models.Reaction
	if val := args.Get(0); val != nil {
		reaction = val.(models.Reaction)
	}
	return reaction, args.Error(1)
}

func (m *MessageRepositoryMock) AddReceipt(ctx context.Context, messageID, userID int, kind string) error {
	args := m.Called(ctx, messageID, userID, kind)
	return args.Error(0)
}

func (m *MessageRepositoryMock) IsRecipient(ctx context.Context, messageID, userID int) (bool, error) {
	args := m.Called(ctx, messageID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.Message, error) {
	args := m.Called(ctx, userID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) ListUnread(ctx context.Context, userID int) ([]models.Message, error) {
	args := m.Called(ctx, userID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) ListNotReceived(ctx context.Context, userID int) ([]models.Message, error) {
	args := m.Called(ctx, userID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) ListByAttachmentKind(ctx context.Context, userID int, kind string) ([]models.Message, error) {
	args := m.Called(ctx, userID, kind)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) Search(ctx context.Context, userID int, query string) ([]models.Message, error) {
	args := m.Called(ctx, userID, query)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) SetArchivedForUser(ctx context.Context, userID int, archived bool) (int64, error) {
	args := m.Called(ctx, userID, archived)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) SoftDeleteAllForUser(ctx context.Context, userID int) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) DeleteByGroup(ctx context.Context, groupID int) (int64, error) {
	args := m.Called(ctx, groupID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) ListSweepCandidates(ctx context.Context) ([]repositories.SweepCandidate, error) {
	args := m.Called(ctx)
	var list []repositories.SweepCandidate
	if val := args.Get(0); val != nil {
		list = val.([]repositories.SweepCandidate)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) HardDelete(ctx context.Context, messageID int) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, creatorID int, name, about string, participantIDs []int) (models.GroupSnapshot, error) {
	args := m.Called(ctx, creatorID, name, about, participantIDs)
	var snapshot models.GroupSnapshot
	if val := args.Get(0); val != nil {
		snapshot = val.(models.GroupSnapshot)
	}
	return snapshot, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int) (models.GroupSnapshot, error) {
	args := m.Called(ctx, groupID)
	var snapshot models.GroupSnapshot
	if val := args.Get(0); val != nil {
		snapshot = val.(models.GroupSnapshot)
	}
	return snapshot, args.Error(1)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) IsAdmin(ctx context.Context, groupID, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) AddParticipant(ctx context.Context, groupID, userID int, action string, actorID int) error {
	args := m.Called(ctx, groupID, userID, action, actorID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) AddParticipants(ctx context.Context, groupID int, userIDs []int, action string, actorID int) ([]int, error) {
	args := m.Called(ctx, groupID, userIDs, action, actorID)
	var added []int
	if val := args.Get(0); val != nil {
		added = val.([]int)
	}
	return added, args.Error(1)
}

func (m *GroupRepositoryMock) PromoteAdmin(ctx context.Context, groupID, userID int, action string, actorID int) error {
	args := m.Called(ctx, groupID, userID, action, actorID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) Leave(ctx context.Context, groupID, userID int, action string) error {
	args := m.Called(ctx, groupID, userID, action)
	return args.Error(0)
}

func (m *GroupRepositoryMock) ForceLeave(ctx context.Context, groupID, targetID int, action string, actorID int) error {
	args := m.Called(ctx, groupID, targetID, action, actorID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) UpdateMetadata(ctx context.Context, groupID, actorID int, name, about, pictureURL *string) (models.Group, string, error) {
	args := m.Called(ctx, groupID, actorID, name, about, pictureURL)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.String(1), args.Error(2)
}

func (m *GroupRepositoryMock) History(ctx context.Context, groupID int) ([]models.HistoryEntry, error) {
	args := m.Called(ctx, groupID)
	var entries []models.HistoryEntry
	if val := args.Get(0); val != nil {
		entries = val.([]models.HistoryEntry)
	}
	return entries, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	args := m.Called(ctx, userID)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) DeleteGroup(ctx context.Context, groupID int) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

type NotificationRepositoryMock struct {
	mock.Mock
}

func (m *NotificationRepositoryMock) Create(ctx context.Context, notification models.Notification) (models.Notification, error) {
	args := m.Called(ctx, notification)
	var stored models.Notification
	if val := args.Get(0); val != nil {
		stored = val.(models.Notification)
	}
	return stored, args.Error(1)
}

func (m *NotificationRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.Notification, error) {
	args := m.Called(ctx, userID)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *NotificationRepositoryMock) Get(ctx context.Context, notificationID int) (models.Notification, error) {
	args := m.Called(ctx, notificationID)
	var notification models.Notification
	if val := args.Get(0); val != nil {
		notification = val.(models.Notification)
	}
	return notification, args.Error(1)
}

func (m *NotificationRepositoryMock) MarkReadAndDelete(ctx context.Context, notificationID int) (models.Notification, error) {
	args := m.Called(ctx, notificationID)
	var notification models.Notification
	if val := args.Get(0); val != nil {
		notification = val.(models.Notification)
	}
	return notification, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) ResolveUsernames(ctx context.Context, usernames []string) ([]models.User, error) {
	args := m.Called(ctx, usernames)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, userIDs []int) ([]models.User, error) {
	args := m.Called(ctx, userIDs)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

type ChannelMock struct {
	mock.Mock
}

func (m *ChannelMock) Deliver(ctx context.Context, notification models.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}
