package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dm-service/internal/delivery"
	"dm-service/internal/identity"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
)

// ChatHandler serves the HTTP chat surface. All writes go through the
// delivery coordinator so this path and the websocket path share one code
// path for business logic.
type ChatHandler struct {
	chats       repositories.ChatRepository
	messages    repositories.MessageRepository
	users       identity.Provider
	coordinator *delivery.Coordinator
	audit       *telemetry.AuditEmitter
	log         *zap.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats repositories.ChatRepository, messages repositories.MessageRepository, users identity.Provider, coordinator *delivery.Coordinator, audit *telemetry.AuditEmitter, log *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chats:       chats,
		messages:    messages,
		users:       users,
		coordinator: coordinator,
		audit:       audit,
		log:         log,
	}
}

// ListChats returns the chats visible to the authenticated user, most
// recently active first, with friend display fields attached.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := currentUserID(c)

	chats, err := h.chats.ListVisibleFor(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("list chats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	friendIDs := make([]uuid.UUID, 0, len(chats))
	for _, chat := range chats {
		friendIDs = append(friendIDs, chat.FriendID)
	}

	summaries, err := h.users.Summaries(c.Request.Context(), friendIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user info"})
		return
	}

	for i := range chats {
		if summary, ok := summaries[chats[i].FriendID]; ok {
			s := summary
			chats[i].Friend = &s
		}
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartChat creates or reopens the chat with another user, looked up by
// username. Creating an already-existing visible chat is idempotent and
// returns the existing chat.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := currentUserID(c)
	other, err := h.users.LookupByUsername(c.Request.Context(), req.Username)
	if err != nil {
		abortWithError(c, err, "failed to resolve user")
		return
	}

	res, err := h.coordinator.StartChat(c.Request.Context(), userID, other.ID)
	if err != nil {
		abortWithError(c, err, "could not create chat")
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"chat":            res.Chat,
		"created":         res.Created,
		"already_visible": res.AlreadyVisible,
	})
}

// DeleteChat hides the chat for the requester only. The other participant's
// view is untouched and the chat row survives.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}
	userID := currentUserID(c)

	if err := h.chats.Hide(c.Request.Context(), chatID, userID); err != nil {
		abortWithError(c, err, "could not hide chat")
		return
	}

	uid := userID.String()
	h.audit.Emit(c.Request.Context(), "INFO", "chat hidden", requestIDFromContext(c), &uid)
	c.Status(http.StatusNoContent)
}

// GetChatMessages returns the chat's messages as visible to the requester.
// Fetching marks unread messages from the other participant as read.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}
	userID := currentUserID(c)

	msgs, err := h.messages.ListForChat(c.Request.Context(), chatID, userID)
	if err != nil {
		abortWithError(c, err, "failed to load messages")
		return
	}

	senderIDs := make([]uuid.UUID, 0, 2)
	seen := map[uuid.UUID]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	summaries, err := h.users.Summaries(c.Request.Context(), senderIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load senders"})
		return
	}
	for i := range msgs {
		if summary, ok := summaries[msgs[i].SenderID]; ok {
			s := summary
			msgs[i].Sender = &s
		}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostChatMessage persists a message through the coordinator and returns it.
// The room broadcast happens inside the coordinator, after persistence.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}

	var req struct {
		Content string             `json:"content" binding:"required"`
		Kind    models.MessageKind `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := currentUserID(c)
	msg, err := h.coordinator.SendMessage(c.Request.Context(), userID, chatID, req.Content, req.Kind)
	if err != nil {
		abortWithError(c, err, "failed to store message")
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage soft-deletes a message on behalf of its sender and returns
// the redacted record.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}
	messageID, ok := parseUUIDParam(c, "message_id")
	if !ok {
		return
	}

	userID := currentUserID(c)
	msg, err := h.coordinator.DeleteMessage(c.Request.Context(), userID, chatID, messageID)
	if err != nil {
		abortWithError(c, err, "could not delete message")
		return
	}

	uid := userID.String()
	h.audit.Emit(c.Request.Context(), "INFO", "message deleted", requestIDFromContext(c), &uid)
	c.JSON(http.StatusOK, msg)
}

// UnreadCount returns the unread badge for the authenticated user.
// visible_only=true restricts the count to chats not currently hidden.
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userID := currentUserID(c)
	visibleOnly := c.Query("visible_only") == "true"

	count, err := h.messages.CountUnread(c.Request.Context(), userID, visibleOnly)
	if err != nil {
		h.log.Error("unread count failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count unread messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": count})
}
