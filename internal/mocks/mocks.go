package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"dm-service/internal/delivery"
	"dm-service/internal/identity"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) FindOrCreate(ctx context.Context, userID, otherID uuid.UUID) (repositories.FindOrCreateResult, error) {
	args := m.Called(ctx, userID, otherID)
	var res repositories.FindOrCreateResult
	if val := args.Get(0); val != nil {
		res = val.(repositories.FindOrCreateResult)
	}
	return res, args.Error(1)
}

func (m *ChatRepositoryMock) Get(ctx context.Context, chatID uuid.UUID) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) IsParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) Hide(ctx context.Context, chatID, userID uuid.UUID) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) UnhideFor(ctx context.Context, chatID, userID uuid.UUID) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) ListVisibleFor(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) ListIDsFor(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	var ids []uuid.UUID
	if val := args.Get(0); val != nil {
		ids = val.([]uuid.UUID)
	}
	return ids, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, chatID, senderID uuid.UUID, content string, kind models.MessageKind) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, content, kind)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, chatID, messageID, userID uuid.UUID) (models.Message, error) {
	args := m.Called(ctx, chatID, messageID, userID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListForChat(ctx context.Context, chatID, userID uuid.UUID) ([]models.Message, error) {
	args := m.Called(ctx, chatID, userID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) CountUnread(ctx context.Context, userID uuid.UUID, visibleOnly bool) (int, error) {
	args := m.Called(ctx, userID, visibleOnly)
	return args.Int(0), args.Error(1)
}

type IdentityProviderMock struct {
	mock.Mock
}

func (m *IdentityProviderMock) Summaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.UserSummary, error) {
	args := m.Called(ctx, ids)
	var summaries map[uuid.UUID]models.UserSummary
	if val := args.Get(0); val != nil {
		summaries = val.(map[uuid.UUID]models.UserSummary)
	}
	return summaries, args.Error(1)
}

func (m *IdentityProviderMock) LookupByUsername(ctx context.Context, username string) (models.UserSummary, error) {
	args := m.Called(ctx, username)
	var user models.UserSummary
	if val := args.Get(0); val != nil {
		user = val.(models.UserSummary)
	}
	return user, args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) BroadcastMessage(chatID uuid.UUID, msg models.Message) {
	m.Called(chatID, msg)
}

func (m *BroadcasterMock) BroadcastDeletion(chatID, messageID uuid.UUID) {
	m.Called(chatID, messageID)
}

func (m *BroadcasterMock) JoinIdentity(chatID, userID uuid.UUID) {
	m.Called(chatID, userID)
}

var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ identity.Provider = (*IdentityProviderMock)(nil)
var _ delivery.Broadcaster = (*BroadcasterMock)(nil)
