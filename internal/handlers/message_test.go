package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"huru-chat/internal/fanout"
	"huru-chat/internal/mocks"
	"huru-chat/internal/models"
	"huru-chat/internal/repositories"
	"huru-chat/internal/ws"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/messages", handler.Send)
	r.GET("/messages", handler.List)
	r.GET("/messages/unread", handler.ListUnread)
	r.GET("/messages/attachments/:kind", handler.ListByAttachmentKind)
	r.GET("/messages/search", handler.Search)
	r.POST("/messages/:message_id/reply", handler.Reply)
	r.PATCH("/messages/:message_id", handler.Edit)
	r.DELETE("/messages/:message_id", handler.Delete)
	r.POST("/messages/:message_id/reactions", handler.React)
	r.POST("/messages/:message_id/received", handler.MarkReceived)
	r.POST("/messages/:message_id/read", handler.MarkRead)
	return r
}

func newMessageHandler(messageRepo *mocks.MessageRepositoryMock, groupRepo *mocks.GroupRepositoryMock, userRepo *mocks.UserRepositoryMock, notificationRepo *mocks.NotificationRepositoryMock) *MessageHandler {
	dispatcher := fanout.NewDispatcher(messageRepo, notificationRepo)
	return NewMessageHandler(messageRepo, groupRepo, userRepo, dispatcher, ws.NewHub(), nil, 10*time.Minute)
}

func TestSendDirectMessageFansOut(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := newMessageHandler(messageRepo, new(mocks.GroupRepositoryMock), userRepo, notificationRepo)
	router := setupMessageRouter(handler)

	stored := models.Message{ID: 4, SenderID: 1, Body: "hello", Recipients: []int{2}}
	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(input repositories.NewMessageInput) bool {
		return input.SenderID == 1 && len(input.Recipients) == 1 && input.Recipients[0] == 2
	})).Return(stored, nil).Once()
	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	messageRepo.On("ClaimFanout", mock.Anything, 4).Return(true, nil).Once()
	notificationRepo.On("Create", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.RecipientID == 2 && n.Text == "alice has sent you a message: 'hello'"
	})).Return(models.Notification{ID: 1, RecipientID: 2}, nil).Once()

	body := bytes.NewBufferString(`{"recipients":[2],"body":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	messageRepo.AssertExpectations(t)
	notificationRepo.AssertExpectations(t)
}

func TestSendRequiresBodyOrAttachments(t *testing.T) {
	handler := newMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.GroupRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.NotificationRepositoryMock))
	router := setupMessageRouter(handler)

	body := bytes.NewBufferString(`{"recipients":[2]}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendGroupMessageSnapshotsRecipients(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := newMessageHandler(messageRepo, groupRepo, userRepo, notificationRepo)
	router := setupMessageRouter(handler)

	snapshot := models.GroupSnapshot{
		Group:        models.Group{ID: 5, Name: "g"},
		Participants: []int{1, 2, 3},
	}
	groupRepo.On("GetGroup", mock.Anything, 5).Return(snapshot, nil)

	groupID := 5
	stored := models.Message{ID: 6, SenderID: 1, GroupID: &groupID, IsGroup: true, Body: "hi", Recipients: []int{2, 3}}
	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(input repositories.NewMessageInput) bool {
		return input.IsGroup && len(input.Recipients) == 2
	})).Return(stored, nil).Once()
	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	messageRepo.On("ClaimFanout", mock.Anything, 6).Return(true, nil).Once()
	notificationRepo.On("Create", mock.Anything, mock.Anything).Return(models.Notification{ID: 1}, nil).Twice()

	body := bytes.NewBufferString(`{"group_id":5,"body":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	messageRepo.AssertExpectations(t)
	notificationRepo.AssertExpectations(t)
}

func TestSendGroupMessageRequiresMembership(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := newMessageHandler(new(mocks.MessageRepositoryMock), groupRepo, new(mocks.UserRepositoryMock), new(mocks.NotificationRepositoryMock))
	router := setupMessageRouter(handler)

	snapshot := models.GroupSnapshot{
		Group:        models.Group{ID: 5, Name: "g"},
		Participants: []int{2, 3},
	}
	groupRepo.On("GetGroup", mock.Anything, 5).Return(snapshot, nil).Once()

	body := bytes.NewBufferString(`{"group_id":5,"body":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReplyTargetsOriginalSender(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := newMessageHandler(messageRepo, new(mocks.GroupRepositoryMock), userRepo, notificationRepo)
	router := setupMessageRouter(handler)

	original := models.Message{ID: 3, SenderID: 2, Body: "first"}
	messageRepo.On("GetMessage", mock.Anything, 3).Return(original, nil)

	repliedTo := 3
	stored := models.Message{ID: 7, SenderID: 1, Body: "yes", IsReply: true, RepliedTo: &repliedTo, Recipients: []int{2}}
	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(input repositories.NewMessageInput) bool {
		return input.IsReply && len(input.Recipients) == 1 && input.Recipients[0] == 2
	})).Return(stored, nil).Once()
	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	userRepo.On("GetUser", mock.Anything, 2).Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	messageRepo.On("ClaimFanout", mock.Anything, 7).Return(true, nil).Once()
	notificationRepo.On("Create", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.RecipientID == 2
	})).Return(models.Notification{ID: 2, RecipientID: 2}, nil).Once()

	body := bytes.NewBufferString(`{"body":"yes"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages/3/reply", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	messageRepo.AssertExpectations(t)
	notificationRepo.AssertExpectations(t)
}

func TestEditForbiddenForNonSender(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(messageRepo, new(mocks.GroupRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.NotificationRepositoryMock))
	router := setupMessageRouter(handler)

	messageRepo.On("GetMessage", mock.Anything, 3).Return(models.Message{ID: 3, SenderID: 2, DateSent: time.Now()}, nil).Once()

	body := bytes.NewBufferString(`{"body":"edit"}`)
	req := httptest.NewRequest(http.MethodPatch, "/messages/3", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "EditMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEditWindowExpired(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(messageRepo, new(mocks.GroupRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.NotificationRepositoryMock))
	router := setupMessageRouter(handler)

	sent := time.Now().Add(-11 * time.Minute)
	messageRepo.On("GetMessage", mock.Anything, 3).Return(models.Message{ID: 3, SenderID: 1, DateSent: sent}, nil).Once()

	body := bytes.NewBufferString(`{"body":"too late"}`)
	req := httptest.NewRequest(http.MethodPatch, "/messages/3", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "edit window expired", resp["error"])
	messageRepo.AssertNotCalled(t, "EditMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEditWithinWindowNotifiesRecipients(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := newMessageHandler(messageRepo, new(mocks.GroupRepositoryMock), userRepo, notificationRepo)
	router := setupMessageRouter(handler)

	sent := time.Now().Add(-5 * time.Minute)
	messageRepo.On("GetMessage", mock.Anything, 3).Return(models.Message{ID: 3, SenderID: 1, DateSent: sent, Recipients: []int{2}}, nil).Once()
	edited := models.Message{ID: 3, SenderID: 1, Body: "fixed", Edited: true, Recipients: []int{2}}
	messageRepo.On("EditMessage", mock.Anything, 3, "fixed", mock.Anything).Return(edited, nil).Once()
	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	notificationRepo.On("Create", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.RecipientID == 2 && n.Text == "A message has been edited: 'fixed'"
	})).Return(models.Notification{ID: 5, RecipientID: 2}, nil).Once()

	body := bytes.NewBufferString(`{"body":"fixed"}`)
	req := httptest.NewRequest(http.MethodPatch, "/messages/3", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
	notificationRepo.AssertExpectations(t)
}

func TestMarkReadConflictWhenAlreadyAcknowledged(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(messageRepo, new(mocks.GroupRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.NotificationRepositoryMock))
	router := setupMessageRouter(handler)

	messageRepo.On("IsRecipient", mock.Anything, 3, 1).Return(true, nil).Once()
	messageRepo.On("AddReceipt", mock.Anything, 3, 1, models.ReceiptRead).Return(repositories.ErrAlreadyAcknowledged).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/3/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestMarkReceivedForbiddenForNonRecipient(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(messageRepo, new(mocks.GroupRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.NotificationRepositoryMock))
	router := setupMessageRouter(handler)

	messageRepo.On("IsRecipient", mock.Anything, 3, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages/3/received", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "AddReceipt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListByAttachmentKindRejectsUnknownKind(t *testing.T) {
	handler := newMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.GroupRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.NotificationRepositoryMock))
	router := setupMessageRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/messages/attachments/audio", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRequiresQuery(t *testing.T) {
	handler := newMessageHandler(new(mocks.MessageRepositoryMock), new(mocks.GroupRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.NotificationRepositoryMock))
	router := setupMessageRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/messages/search", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMessageNotifiesRecipients(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := newMessageHandler(messageRepo, new(mocks.GroupRepositoryMock), userRepo, notificationRepo)
	router := setupMessageRouter(handler)

	messageRepo.On("GetMessage", mock.Anything, 3).Return(models.Message{ID: 3, SenderID: 1, Recipients: []int{2}}, nil).Once()
	messageRepo.On("SoftDelete", mock.Anything, 3).Return(nil).Once()
	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	notificationRepo.On("Create", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.RecipientID == 2 && n.Text == "A message has been deleted"
	})).Return(models.Notification{ID: 8, RecipientID: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/messages/3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
	notificationRepo.AssertExpectations(t)
}
