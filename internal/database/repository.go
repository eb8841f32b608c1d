package database

import "context"

type CommunityRepository interface {
	Ping() error
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserById(ctx context.Context, userId int) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	TouchLastActive(ctx context.Context, userId int) error
	ListRecentUsers(ctx context.Context, limit int) ([]User, error)
	ListProjects(ctx context.Context) ([]Project, error)
	CreateProject(ctx context.Context, params CreateProjectParams) (Project, error)
	CreateMessage(ctx context.Context, msg Message) (Message, error)
	GetMessageWithAuthor(ctx context.Context, messageId int) (MessageWithAuthor, error)
	ListMessages(ctx context.Context, room string, limit int) ([]MessageWithAuthor, error)
	ListApis(ctx context.Context) ([]ApiEntry, error)
	CreateApi(ctx context.Context, params CreateApiParams) (ApiEntry, error)
	GetApiById(ctx context.Context, apiId int) (ApiEntry, error)
	ListLessons(ctx context.Context) ([]Lesson, error)
	ListBadges(ctx context.Context, userId int) ([]Badge, error)
	ListHackathons(ctx context.Context) ([]Hackathon, error)
	CountStats(ctx context.Context) (Counts, error)
}
