package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dm-service/internal/delivery"
	"dm-service/internal/identity"
	"dm-service/internal/middleware"
	"dm-service/internal/mocks"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

type handlerFixture struct {
	chats    *mocks.ChatRepositoryMock
	messages *mocks.MessageRepositoryMock
	users    *mocks.IdentityProviderMock
	hub      *mocks.BroadcasterMock
	userID   uuid.UUID
	router   *gin.Engine
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		chats:    new(mocks.ChatRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		users:    new(mocks.IdentityProviderMock),
		hub:      new(mocks.BroadcasterMock),
		userID:   uuid.New(),
	}

	coordinator := delivery.NewCoordinator(f.chats, f.messages, f.users, f.hub, zap.NewNop())
	handler := NewChatHandler(f.chats, f.messages, f.users, coordinator, nil, zap.NewNop())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, f.userID)
		c.Next()
	})
	r.GET("/chats", handler.ListChats)
	r.POST("/chats", handler.StartChat)
	r.DELETE("/chats/:chat_id", handler.DeleteChat)
	r.GET("/chats/:chat_id/messages", handler.GetChatMessages)
	r.POST("/chats/:chat_id/messages", handler.PostChatMessage)
	r.DELETE("/chats/:chat_id/messages/:message_id", handler.DeleteMessage)
	r.GET("/messages/unread-count", handler.UnreadCount)
	f.router = r
	return f
}

func (f *handlerFixture) do(method, path string, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestListChatsSuccess(t *testing.T) {
	f := newFixture(t)
	friendID := uuid.New()

	f.chats.On("ListVisibleFor", mock.Anything, f.userID).
		Return([]models.ChatSummary{{ChatID: uuid.New(), FriendID: friendID}}, nil).Once()
	f.users.On("Summaries", mock.Anything, []uuid.UUID{friendID}).
		Return(map[uuid.UUID]models.UserSummary{friendID: {ID: friendID, Username: "bob"}}, nil).Once()

	rec := f.do(http.MethodGet, "/chats", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Chats []models.ChatSummary `json:"chats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Chats, 1)
	require.NotNil(t, resp.Chats[0].Friend)
	assert.Equal(t, "bob", resp.Chats[0].Friend.Username)

	f.chats.AssertExpectations(t)
	f.users.AssertExpectations(t)
}

func TestListChatsRepoError(t *testing.T) {
	f := newFixture(t)
	f.chats.On("ListVisibleFor", mock.Anything, f.userID).
		Return(([]models.ChatSummary)(nil), assert.AnError).Once()

	rec := f.do(http.MethodGet, "/chats", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStartChatCreated(t *testing.T) {
	f := newFixture(t)
	otherID := uuid.New()
	chat := models.Chat{ID: uuid.New(), UserOneID: f.userID, UserTwoID: otherID}

	f.users.On("LookupByUsername", mock.Anything, "bob").
		Return(models.UserSummary{ID: otherID, Username: "bob"}, nil).Once()
	f.chats.On("FindOrCreate", mock.Anything, f.userID, otherID).
		Return(repositories.FindOrCreateResult{Chat: chat, Created: true, AlreadyVisible: true}, nil).Once()
	f.hub.On("JoinIdentity", chat.ID, f.userID).Once()
	f.hub.On("JoinIdentity", chat.ID, otherID).Once()

	rec := f.do(http.MethodPost, "/chats", `{"username":"bob"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	f.hub.AssertExpectations(t)
}

func TestStartChatExistingReturnsOK(t *testing.T) {
	f := newFixture(t)
	otherID := uuid.New()
	chat := models.Chat{ID: uuid.New(), UserOneID: otherID, UserTwoID: f.userID}

	f.users.On("LookupByUsername", mock.Anything, "bob").
		Return(models.UserSummary{ID: otherID, Username: "bob"}, nil).Once()
	f.chats.On("FindOrCreate", mock.Anything, f.userID, otherID).
		Return(repositories.FindOrCreateResult{Chat: chat, AlreadyVisible: true}, nil).Once()

	rec := f.do(http.MethodPost, "/chats", `{"username":"bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStartChatUnknownUsername(t *testing.T) {
	f := newFixture(t)
	f.users.On("LookupByUsername", mock.Anything, "ghost").
		Return(models.UserSummary{}, identity.ErrUserNotFound).Once()

	rec := f.do(http.MethodPost, "/chats", `{"username":"ghost"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartChatWithSelf(t *testing.T) {
	f := newFixture(t)
	f.users.On("LookupByUsername", mock.Anything, "me").
		Return(models.UserSummary{ID: f.userID, Username: "me"}, nil).Once()
	f.chats.On("FindOrCreate", mock.Anything, f.userID, f.userID).
		Return(repositories.FindOrCreateResult{}, repositories.ErrSelfChat).Once()

	rec := f.do(http.MethodPost, "/chats", `{"username":"me"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteChatHidesForRequester(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()
	f.chats.On("Hide", mock.Anything, chatID, f.userID).Return(nil).Once()

	rec := f.do(http.MethodDelete, "/chats/"+chatID.String(), "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	f.chats.AssertExpectations(t)
}

func TestDeleteChatNotParticipant(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()
	f.chats.On("Hide", mock.Anything, chatID, f.userID).Return(repositories.ErrNotParticipant).Once()

	rec := f.do(http.MethodDelete, "/chats/"+chatID.String(), "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetChatMessagesSuccess(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()
	senderID := uuid.New()
	content := "hello"

	f.messages.On("ListForChat", mock.Anything, chatID, f.userID).
		Return([]models.Message{{ID: uuid.New(), ChatID: chatID, SenderID: senderID, Content: &content}}, nil).Once()
	f.users.On("Summaries", mock.Anything, []uuid.UUID{senderID}).
		Return(map[uuid.UUID]models.UserSummary{senderID: {ID: senderID, Username: "bob"}}, nil).Once()

	rec := f.do(http.MethodGet, "/chats/"+chatID.String()+"/messages", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	require.NotNil(t, resp.Messages[0].Sender)
	assert.Equal(t, "bob", resp.Messages[0].Sender.Username)
}

func TestGetChatMessagesForbidden(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()
	f.messages.On("ListForChat", mock.Anything, chatID, f.userID).
		Return(([]models.Message)(nil), repositories.ErrNotParticipant).Once()

	rec := f.do(http.MethodGet, "/chats/"+chatID.String()+"/messages", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetChatMessagesInvalidID(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/chats/not-a-uuid/messages", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostChatMessageSuccess(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()
	content := "hi"
	stored := models.Message{ID: uuid.New(), ChatID: chatID, SenderID: f.userID, Content: &content, Kind: models.KindText}

	f.messages.On("Create", mock.Anything, chatID, f.userID, "hi", models.MessageKind("")).Return(stored, nil).Once()
	f.users.On("Summaries", mock.Anything, []uuid.UUID{f.userID}).
		Return(map[uuid.UUID]models.UserSummary{}, nil).Once()
	f.hub.On("BroadcastMessage", chatID, mock.Anything).Once()

	rec := f.do(http.MethodPost, "/chats/"+chatID.String()+"/messages", `{"content":"hi"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	f.messages.AssertExpectations(t)
	f.hub.AssertExpectations(t)
}

func TestPostChatMessageEmptyContent(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()

	rec := f.do(http.MethodPost, "/chats/"+chatID.String()+"/messages", `{}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	f.hub.AssertNotCalled(t, "BroadcastMessage", mock.Anything, mock.Anything)
}

func TestPostChatMessageChatNotFound(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()
	f.messages.On("Create", mock.Anything, chatID, f.userID, "hi", models.MessageKind("")).
		Return(models.Message{}, repositories.ErrChatNotFound).Once()

	rec := f.do(http.MethodPost, "/chats/"+chatID.String()+"/messages", `{"content":"hi"}`)

	require.Equal(t, http.StatusNotFound, rec.Code)
	f.hub.AssertNotCalled(t, "BroadcastMessage", mock.Anything, mock.Anything)
}

func TestDeleteMessageSuccess(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()
	messageID := uuid.New()
	deleted := models.Message{ID: messageID, ChatID: chatID, SenderID: f.userID, Deleted: true, Read: true}

	f.messages.On("SoftDelete", mock.Anything, chatID, messageID, f.userID).Return(deleted, nil).Once()
	f.users.On("Summaries", mock.Anything, mock.Anything).Return(map[uuid.UUID]models.UserSummary{}, nil).Once()
	f.hub.On("BroadcastDeletion", chatID, messageID).Once()

	rec := f.do(http.MethodDelete, "/chats/"+chatID.String()+"/messages/"+messageID.String(), "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Deleted)
	assert.Nil(t, resp.Content)
	assert.True(t, resp.Read)
}

func TestDeleteMessageNotSender(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()
	messageID := uuid.New()
	f.messages.On("SoftDelete", mock.Anything, chatID, messageID, f.userID).
		Return(models.Message{}, repositories.ErrNotSender).Once()

	rec := f.do(http.MethodDelete, "/chats/"+chatID.String()+"/messages/"+messageID.String(), "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	f.hub.AssertNotCalled(t, "BroadcastDeletion", mock.Anything, mock.Anything)
}

func TestDeleteMessageTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()
	messageID := uuid.New()
	f.messages.On("SoftDelete", mock.Anything, chatID, messageID, f.userID).
		Return(models.Message{}, repositories.ErrMessageDeleted).Once()

	rec := f.do(http.MethodDelete, "/chats/"+chatID.String()+"/messages/"+messageID.String(), "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestUnreadCount(t *testing.T) {
	f := newFixture(t)
	f.messages.On("CountUnread", mock.Anything, f.userID, false).Return(3, nil).Once()

	rec := f.do(http.MethodGet, "/messages/unread-count", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp["unread"])
}

func TestUnreadCountVisibleOnly(t *testing.T) {
	f := newFixture(t)
	f.messages.On("CountUnread", mock.Anything, f.userID, true).Return(1, nil).Once()

	rec := f.do(http.MethodGet, "/messages/unread-count?visible_only=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f.messages.AssertExpectations(t)
}
