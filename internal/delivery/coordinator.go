package delivery

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dm-service/internal/identity"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

// Broadcaster is the realtime fanout the coordinator drives after a
// successful write. The websocket hub implements it.
type Broadcaster interface {
	BroadcastMessage(chatID uuid.UUID, msg models.Message)
	BroadcastDeletion(chatID, messageID uuid.UUID)
	JoinIdentity(chatID, userID uuid.UUID)
}

// Coordinator is the single entry point for chat writes. The HTTP handlers
// and the websocket gateway both call it, so the two paths cannot diverge:
// persistence always happens first, and a persistence failure suppresses the
// broadcast entirely.
type Coordinator struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    identity.Provider
	hub      Broadcaster
	log      *zap.Logger
}

// NewCoordinator wires the coordinator.
func NewCoordinator(chats repositories.ChatRepository, messages repositories.MessageRepository, users identity.Provider, hub Broadcaster, log *zap.Logger) *Coordinator {
	return &Coordinator{chats: chats, messages: messages, users: users, hub: hub, log: log}
}

// SendMessage persists a message and broadcasts it to the chat's room. The
// returned message carries the sender's identity summary.
func (c *Coordinator) SendMessage(ctx context.Context, senderID, chatID uuid.UUID, content string, kind models.MessageKind) (models.Message, error) {
	msg, err := c.messages.Create(ctx, chatID, senderID, content, kind)
	if err != nil {
		return models.Message{}, err
	}

	c.attachSender(ctx, &msg)
	c.hub.BroadcastMessage(chatID, msg)
	return msg, nil
}

// DeleteMessage soft-deletes a message on behalf of its sender and notifies
// the room. The returned record is already redacted.
func (c *Coordinator) DeleteMessage(ctx context.Context, senderID, chatID, messageID uuid.UUID) (models.Message, error) {
	msg, err := c.messages.SoftDelete(ctx, chatID, messageID, senderID)
	if err != nil {
		return models.Message{}, err
	}

	c.attachSender(ctx, &msg)
	c.hub.BroadcastDeletion(chatID, messageID)
	return msg, nil
}

// StartChat resolves or creates the chat for the pair. For a brand-new chat,
// both participants' live connections are pulled into the room immediately so
// neither side needs to reconnect before realtime delivery works.
func (c *Coordinator) StartChat(ctx context.Context, userID, otherID uuid.UUID) (repositories.FindOrCreateResult, error) {
	res, err := c.chats.FindOrCreate(ctx, userID, otherID)
	if err != nil {
		return repositories.FindOrCreateResult{}, err
	}

	if res.Created {
		c.hub.JoinIdentity(res.Chat.ID, userID)
		c.hub.JoinIdentity(res.Chat.ID, otherID)
	}
	return res, nil
}

func (c *Coordinator) attachSender(ctx context.Context, msg *models.Message) {
	summaries, err := c.users.Summaries(ctx, []uuid.UUID{msg.SenderID})
	if err != nil {
		// Display fields are decoration; the write already succeeded.
		c.log.Warn("sender summary lookup failed", zap.String("sender_id", msg.SenderID.String()), zap.Error(err))
		return
	}
	if summary, ok := summaries[msg.SenderID]; ok {
		msg.Sender = &summary
	}
}
