package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"huru-chat/internal/fanout"
	"huru-chat/internal/mocks"
	"huru-chat/internal/models"
	"huru-chat/internal/repositories"
)

func setupGroupRouter(handler *GroupHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/groups", handler.Create)
	r.GET("/groups", handler.ListForUser)
	r.GET("/groups/:group_id", handler.Get)
	r.PATCH("/groups/:group_id", handler.Update)
	r.DELETE("/groups/:group_id", handler.Delete)
	r.GET("/groups/:group_id/history", handler.History)
	r.POST("/groups/:group_id/participants", handler.AddParticipant)
	r.POST("/groups/:group_id/participants/batch", handler.AddParticipants)
	r.POST("/groups/:group_id/admins", handler.PromoteAdmin)
	r.POST("/groups/:group_id/leave", handler.Leave)
	r.POST("/groups/:group_id/force-leave", handler.ForceLeave)
	return r
}

func newGroupHandler(groupRepo *mocks.GroupRepositoryMock, messageRepo *mocks.MessageRepositoryMock, userRepo *mocks.UserRepositoryMock, notificationRepo *mocks.NotificationRepositoryMock) *GroupHandler {
	dispatcher := fanout.NewDispatcher(messageRepo, notificationRepo)
	return NewGroupHandler(groupRepo, messageRepo, userRepo, dispatcher, nil)
}

func TestCreateGroupNotifiesParticipants(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := newGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), userRepo, notificationRepo)
	router := setupGroupRouter(handler)

	userRepo.On("ResolveUsernames", mock.Anything, []string{"bob", "carol"}).Return([]models.User{{ID: 2, Username: "bob"}, {ID: 3, Username: "carol"}}, nil).Once()
	snapshot := models.GroupSnapshot{
		Group:        models.Group{ID: 5, Name: "book club", CreatedBy: 1},
		Participants: []int{1, 2, 3},
		Admins:       []int{1},
	}
	groupRepo.On("CreateGroup", mock.Anything, 1, "book club", "", []int{2, 3}).Return(snapshot, nil).Once()
	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	notificationRepo.On("Create", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.Kind == models.NotificationKindSystem && n.RecipientID != 1
	})).Return(models.Notification{ID: 1, Kind: models.NotificationKindSystem}, nil).Twice()

	body := bytes.NewBufferString(`{"name":"book club","participants":["bob","carol"]}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	groupRepo.AssertExpectations(t)
	notificationRepo.AssertExpectations(t)
}

func TestCreateGroupDuplicateName(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := newGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), userRepo, new(mocks.NotificationRepositoryMock))
	router := setupGroupRouter(handler)

	groupRepo.On("CreateGroup", mock.Anything, 1, "book club", "", []int{}).Return(models.GroupSnapshot{}, repositories.ErrDuplicateGroupName).Once()

	body := bytes.NewBufferString(`{"name":"book club"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateGroupUnknownParticipant(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := newGroupHandler(new(mocks.GroupRepositoryMock), new(mocks.MessageRepositoryMock), userRepo, new(mocks.NotificationRepositoryMock))
	router := setupGroupRouter(handler)

	userRepo.On("ResolveUsernames", mock.Anything, []string{"ghost"}).Return(([]models.User)(nil), repositories.ErrUserNotFound).Once()

	body := bytes.NewBufferString(`{"name":"book club","participants":["ghost"]}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddParticipantRequiresAdmin(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := newGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.NotificationRepositoryMock))
	router := setupGroupRouter(handler)

	groupRepo.On("IsAdmin", mock.Anything, 5, 1).Return(false, nil).Once()

	body := bytes.NewBufferString(`{"username":"bob"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups/5/participants", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groupRepo.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddParticipantAlreadyMember(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := newGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), userRepo, new(mocks.NotificationRepositoryMock))
	router := setupGroupRouter(handler)

	groupRepo.On("IsAdmin", mock.Anything, 5, 1).Return(true, nil).Once()
	userRepo.On("GetUserByUsername", mock.Anything, "bob").Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	groupRepo.On("AddParticipant", mock.Anything, 5, 2, mock.Anything, 1).Return(repositories.ErrAlreadyMember).Once()

	body := bytes.NewBufferString(`{"username":"bob"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups/5/participants", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAddParticipantsSkipsExistingMembers(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := newGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), userRepo, notificationRepo)
	router := setupGroupRouter(handler)

	groupRepo.On("IsAdmin", mock.Anything, 5, 1).Return(true, nil).Once()
	userRepo.On("ResolveUsernames", mock.Anything, []string{"bob", "carol"}).Return([]models.User{{ID: 2, Username: "bob"}, {ID: 3, Username: "carol"}}, nil).Once()
	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	// bob was already a member; only carol lands
	groupRepo.On("AddParticipants", mock.Anything, 5, []int{2, 3}, mock.Anything, 1).Return([]int{3}, nil).Once()
	snapshot := models.GroupSnapshot{Group: models.Group{ID: 5, Name: "g"}, Participants: []int{1, 2, 3}}
	groupRepo.On("GetGroup", mock.Anything, 5).Return(snapshot, nil).Once()
	notificationRepo.On("Create", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.RecipientID == 3
	})).Return(models.Notification{ID: 1, RecipientID: 3}, nil).Once()

	body := bytes.NewBufferString(`{"usernames":["bob","carol"]}`)
	req := httptest.NewRequest(http.MethodPost, "/groups/5/participants/batch", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groupRepo.AssertExpectations(t)
	notificationRepo.AssertExpectations(t)
}

func TestPromoteAdminAlreadyAdmin(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := newGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), userRepo, new(mocks.NotificationRepositoryMock))
	router := setupGroupRouter(handler)

	groupRepo.On("IsAdmin", mock.Anything, 5, 1).Return(true, nil).Once()
	userRepo.On("GetUserByUsername", mock.Anything, "bob").Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	groupRepo.On("PromoteAdmin", mock.Anything, 5, 2, mock.Anything, 1).Return(repositories.ErrAlreadyAdmin).Once()

	body := bytes.NewBufferString(`{"username":"bob"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups/5/admins", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestLeaveLastAdminBlocked(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := newGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), userRepo, new(mocks.NotificationRepositoryMock))
	router := setupGroupRouter(handler)

	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	groupRepo.On("Leave", mock.Anything, 5, 1, mock.Anything).Return(repositories.ErrLastAdminCannotLeave).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestForceLeaveRemovesSoleAdmin(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := newGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), userRepo, notificationRepo)
	router := setupGroupRouter(handler)

	groupRepo.On("IsAdmin", mock.Anything, 5, 1).Return(true, nil).Once()
	userRepo.On("GetUserByUsername", mock.Anything, "bob").Return(models.User{ID: 2, Username: "bob"}, nil).Once()
	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Username: "alice"}, nil).Once()
	groupRepo.On("ForceLeave", mock.Anything, 5, 2, mock.Anything, 1).Return(nil).Once()
	snapshot := models.GroupSnapshot{Group: models.Group{ID: 5, Name: "g"}, Participants: []int{1, 3}}
	groupRepo.On("GetGroup", mock.Anything, 5).Return(snapshot, nil).Once()
	notificationRepo.On("Create", mock.Anything, mock.Anything).Return(models.Notification{ID: 1}, nil).Twice()

	body := bytes.NewBufferString(`{"username":"bob"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups/5/force-leave", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groupRepo.AssertExpectations(t)
	notificationRepo.AssertExpectations(t)
}

func TestDeleteGroupForbiddenForNonCreator(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := newGroupHandler(groupRepo, messageRepo, new(mocks.UserRepositoryMock), new(mocks.NotificationRepositoryMock))
	router := setupGroupRouter(handler)

	snapshot := models.GroupSnapshot{Group: models.Group{ID: 5, Name: "g", CreatedBy: 2}, Participants: []int{1, 2}}
	groupRepo.On("GetGroup", mock.Anything, 5).Return(snapshot, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "DeleteByGroup", mock.Anything, mock.Anything)
}

func TestDeleteGroupCascadesAndNotifiesEveryone(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	notificationRepo := new(mocks.NotificationRepositoryMock)
	handler := newGroupHandler(groupRepo, messageRepo, new(mocks.UserRepositoryMock), notificationRepo)
	router := setupGroupRouter(handler)

	snapshot := models.GroupSnapshot{Group: models.Group{ID: 5, Name: "g", CreatedBy: 1}, Participants: []int{1, 2, 3}}
	groupRepo.On("GetGroup", mock.Anything, 5).Return(snapshot, nil).Once()
	messageRepo.On("DeleteByGroup", mock.Anything, 5).Return(int64(4), nil).Once()
	groupRepo.On("DeleteGroup", mock.Anything, 5).Return(nil).Once()
	// the creator is notified too
	notificationRepo.On("Create", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.Kind == models.NotificationKindSystem
	})).Return(models.Notification{ID: 1, Kind: models.NotificationKindSystem}, nil).Times(3)

	req := httptest.NewRequest(http.MethodDelete, "/groups/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groupRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	notificationRepo.AssertExpectations(t)
}

func TestHistoryRequiresMembership(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := newGroupHandler(groupRepo, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.NotificationRepositoryMock))
	router := setupGroupRouter(handler)

	groupRepo.On("IsMember", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/5/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groupRepo.AssertNotCalled(t, "History", mock.Anything, mock.Anything)
}
