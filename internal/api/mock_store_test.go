package api

import (
	"context"
	"fmt"

	"github.com/1040440-eng/chatfamily/internal/models"
)

// mockStore implements store.Store with overridable function fields. Methods
// without an override fail loudly so tests only stub what they exercise.
type mockStore struct {
	createUserFn            func(ctx context.Context, name, login, email string, passwordHash *string) (*models.User, error)
	getUserByLoginFn        func(ctx context.Context, login string) (*models.User, error)
	getUserByIDFn           func(ctx context.Context, id string) (*models.User, error)
	getUserByEmailFn        func(ctx context.Context, email string) (*models.User, error)
	searchUsersFn           func(ctx context.Context, query, excludeID string) ([]models.User, error)
	createOrGetDirectChatFn func(ctx context.Context, userA, userB string) (*models.Chat, error)
	getChatFn               func(ctx context.Context, chatID string) (*models.Chat, error)
	getChatParticipantsFn   func(ctx context.Context, chatID string) ([]models.User, error)
	addMessageFn            func(ctx context.Context, chatID, senderID, senderName string, kind models.MessageKind, text string, media *models.Media) (*models.Message, error)
	listMessagesFn          func(ctx context.Context, chatID string, limit int) ([]models.Message, error)
	markChatReadFn          func(ctx context.Context, chatID, userID string) error
	listChatsForUserFn      func(ctx context.Context, userID string) ([]models.ChatSummary, error)
}

func notStubbed(name string) error { return fmt.Errorf("mockStore: %s not stubbed", name) }

func (m *mockStore) CreateUser(ctx context.Context, name, login, email string, passwordHash *string) (*models.User, error) {
	if m.createUserFn == nil {
		return nil, notStubbed("CreateUser")
	}
	return m.createUserFn(ctx, name, login, email, passwordHash)
}

func (m *mockStore) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	if m.getUserByLoginFn == nil {
		return nil, notStubbed("GetUserByLogin")
	}
	return m.getUserByLoginFn(ctx, login)
}

func (m *mockStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if m.getUserByIDFn == nil {
		return nil, notStubbed("GetUserByID")
	}
	return m.getUserByIDFn(ctx, id)
}

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.getUserByEmailFn == nil {
		return nil, notStubbed("GetUserByEmail")
	}
	return m.getUserByEmailFn(ctx, email)
}

func (m *mockStore) SearchUsers(ctx context.Context, query, excludeID string) ([]models.User, error) {
	if m.searchUsersFn == nil {
		return nil, notStubbed("SearchUsers")
	}
	return m.searchUsersFn(ctx, query, excludeID)
}

func (m *mockStore) CreateOrGetDirectChat(ctx context.Context, userA, userB string) (*models.Chat, error) {
	if m.createOrGetDirectChatFn == nil {
		return nil, notStubbed("CreateOrGetDirectChat")
	}
	return m.createOrGetDirectChatFn(ctx, userA, userB)
}

func (m *mockStore) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	if m.getChatFn == nil {
		return nil, notStubbed("GetChat")
	}
	return m.getChatFn(ctx, chatID)
}

func (m *mockStore) GetChatParticipants(ctx context.Context, chatID string) ([]models.User, error) {
	if m.getChatParticipantsFn == nil {
		return nil, notStubbed("GetChatParticipants")
	}
	return m.getChatParticipantsFn(ctx, chatID)
}

func (m *mockStore) AddMessage(ctx context.Context, chatID, senderID, senderName string, kind models.MessageKind, text string, media *models.Media) (*models.Message, error) {
	if m.addMessageFn == nil {
		return nil, notStubbed("AddMessage")
	}
	return m.addMessageFn(ctx, chatID, senderID, senderName, kind, text, media)
}

func (m *mockStore) ListMessages(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	if m.listMessagesFn == nil {
		return nil, notStubbed("ListMessages")
	}
	return m.listMessagesFn(ctx, chatID, limit)
}

func (m *mockStore) MarkChatRead(ctx context.Context, chatID, userID string) error {
	if m.markChatReadFn == nil {
		return notStubbed("MarkChatRead")
	}
	return m.markChatReadFn(ctx, chatID, userID)
}

func (m *mockStore) ListChatsForUser(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	if m.listChatsForUserFn == nil {
		return nil, notStubbed("ListChatsForUser")
	}
	return m.listChatsForUserFn(ctx, userID)
}
