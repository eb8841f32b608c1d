package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	DisplayName  string
	Avatar       string
	Verified     bool
	IsAdmin      bool
	Bio          string
	Skills       []string
	LastActive   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Project struct {
	Id          int
	Title       string
	Description string
	RepoUrl     string
	DemoUrl     string
	Tags        []string
	OwnerId     int
	OwnerName   string
	OwnerAvatar string
	CreatedAt   time.Time
}

type Message struct {
	Id           int
	UserId       int
	Text         string
	Room         string
	Type         string
	CodeLanguage string
	Code         string
	FileName     string
	FileUrl      string
	CreatedAt    time.Time
}

// MessageWithAuthor is a stored message joined with the author's display fields.
type MessageWithAuthor struct {
	Message
	Username    string
	DisplayName string
	Avatar      string
	Verified    bool
}

type ApiEntry struct {
	Id          int
	Name        string
	Description string
	BaseUrl     string
	Category    string
	AuthType    string
	SubmittedBy int
	Approved    bool
	CreatedAt   time.Time
}

type Lesson struct {
	Id       int
	Title    string
	Summary  string
	Content  string
	Level    string
	Position int
}

type Badge struct {
	Id        int
	UserId    int
	Name      string
	Icon      string
	AwardedAt time.Time
}

type Hackathon struct {
	Id          int
	Title       string
	Description string
	Prize       string
	StartsAt    time.Time
	EndsAt      time.Time
}

type Counts struct {
	Users    int
	Projects int
	Messages int
	Apis     int
}

type CreateUserParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	DisplayName  string
}

type CreateProjectParams struct {
	Title       string
	Description string
	RepoUrl     string
	DemoUrl     string
	Tags        []string
	OwnerId     int
}

type CreateApiParams struct {
	Name        string
	Description string
	BaseUrl     string
	Category    string
	AuthType    string
	SubmittedBy int
}
