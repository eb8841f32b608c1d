package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockCommunityRepository struct {
	mock.Mock
}

func (m *MockCommunityRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockCommunityRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCommunityRepository) GetUserById(ctx context.Context, userId int) (User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCommunityRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCommunityRepository) TouchLastActive(ctx context.Context, userId int) error {
	args := m.Called(ctx, userId)
	return args.Error(0)
}
func (m *MockCommunityRepository) ListRecentUsers(ctx context.Context, limit int) ([]User, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockCommunityRepository) ListProjects(ctx context.Context) ([]Project, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Project), args.Error(1)
}
func (m *MockCommunityRepository) CreateProject(ctx context.Context, params CreateProjectParams) (Project, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Project), args.Error(1)
}
func (m *MockCommunityRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockCommunityRepository) GetMessageWithAuthor(ctx context.Context, messageId int) (MessageWithAuthor, error) {
	args := m.Called(ctx, messageId)
	return args.Get(0).(MessageWithAuthor), args.Error(1)
}
func (m *MockCommunityRepository) ListMessages(ctx context.Context, room string, limit int) ([]MessageWithAuthor, error) {
	args := m.Called(ctx, room, limit)
	return args.Get(0).([]MessageWithAuthor), args.Error(1)
}
func (m *MockCommunityRepository) ListApis(ctx context.Context) ([]ApiEntry, error) {
	args := m.Called(ctx)
	return args.Get(0).([]ApiEntry), args.Error(1)
}
func (m *MockCommunityRepository) CreateApi(ctx context.Context, params CreateApiParams) (ApiEntry, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(ApiEntry), args.Error(1)
}
func (m *MockCommunityRepository) GetApiById(ctx context.Context, apiId int) (ApiEntry, error) {
	args := m.Called(ctx, apiId)
	return args.Get(0).(ApiEntry), args.Error(1)
}
func (m *MockCommunityRepository) ListLessons(ctx context.Context) ([]Lesson, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Lesson), args.Error(1)
}
func (m *MockCommunityRepository) ListBadges(ctx context.Context, userId int) ([]Badge, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]Badge), args.Error(1)
}
func (m *MockCommunityRepository) ListHackathons(ctx context.Context) ([]Hackathon, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Hackathon), args.Error(1)
}
func (m *MockCommunityRepository) CountStats(ctx context.Context) (Counts, error) {
	args := m.Called(ctx)
	return args.Get(0).(Counts), args.Error(1)
}
