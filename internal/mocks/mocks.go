package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
)

var (
	_ repositories.GroupRepository   = (*GroupRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
	_ repositories.UserRepository    = (*UserRepositoryMock)(nil)
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) Create(ctx context.Context, group models.Group) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *GroupRepositoryMock) FindByID(ctx context.Context, groupID string) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) FindByMember(ctx context.Context, userID string) ([]models.Group, error) {
	args := m.Called(ctx, userID)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

func (m *GroupRepositoryMock) Save(ctx context.Context, group models.Group) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *GroupRepositoryMock) DeleteByID(ctx context.Context, groupID string) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) FindByID(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) FindByGroup(ctx context.Context, groupID string, page, limit int) ([]models.Message, error) {
	args := m.Called(ctx, groupID, page, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateStatus(ctx context.Context, messageID string, status models.MessageStatus) error {
	args := m.Called(ctx, messageID, status)
	return args.Error(0)
}

func (m *MessageRepositoryMock) UpdateContent(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) AddDeletedFor(ctx context.Context, messageID string, userID string) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteByGroup(ctx context.Context, groupID string) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) SetOnline(ctx context.Context, userID string, online bool) error {
	args := m.Called(ctx, userID, online)
	return args.Error(0)
}

func (m *UserRepositoryMock) DisplayName(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *UserRepositoryMock) FindMissing(ctx context.Context, userIDs []string) ([]string, error) {
	args := m.Called(ctx, userIDs)
	var missing []string
	if val := args.Get(0); val != nil {
		missing = val.([]string)
	}
	return missing, args.Error(1)
}

func (m *UserRepositoryMock) Get(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}
