package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	DisplayName  string    `json:"display_name"`
	Avatar       string    `json:"avatar,omitempty"`
	Verified     bool      `json:"verified"`
	Bio          string    `json:"bio,omitempty"`
	Skills       []string  `json:"skills,omitempty"`
	LastActive   time.Time `json:"last_active,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Profile is the snapshot a connection announces on the realtime channel.
type Profile struct {
	Id          int      `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name,omitempty"`
	Avatar      string   `json:"avatar,omitempty"`
	Verified    bool     `json:"verified"`
	Skills      []string `json:"skills,omitempty"`
}

type MessageType string

const (
	MessageTypeText MessageType = "text"
	MessageTypeCode MessageType = "code"
	MessageTypeFile MessageType = "file"
)

type CodeSnippet struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type FileAttachment struct {
	Name string `json:"name"`
	Url  string `json:"url"`
}

// Author carries the profile fields a chat message is enriched with.
type Author struct {
	Id          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	Verified    bool   `json:"verified"`
}

type Message struct {
	Id        int             `json:"id"`
	UserId    int             `json:"userId"`
	Author    Author          `json:"author"`
	Text      string          `json:"text"`
	Room      string          `json:"room"`
	Type      MessageType     `json:"type"`
	Code      *CodeSnippet    `json:"code,omitempty"`
	File      *FileAttachment `json:"file,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Badge struct {
	Id        int       `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	AwardedAt time.Time `json:"awarded_at"`
}

type Project struct {
	Id          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RepoUrl     string    `json:"repo_url,omitempty"`
	DemoUrl     string    `json:"demo_url,omitempty"`
	Tags        []string  `json:"tags"`
	Owner       Author    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
}

type ApiEntry struct {
	Id          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	BaseUrl     string    `json:"base_url"`
	Category    string    `json:"category"`
	AuthType    string    `json:"auth_type"`
	SubmittedBy int       `json:"submitted_by"`
	Approved    bool      `json:"approved"`
	CreatedAt   time.Time `json:"created_at"`
}

type Lesson struct {
	Id       int    `json:"id"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Content  string `json:"content"`
	Level    string `json:"level"`
	Position int    `json:"position"`
}

type Hackathon struct {
	Id          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Prize       string    `json:"prize,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
}

type Stats struct {
	Users       int `json:"users"`
	Projects    int `json:"projects"`
	Messages    int `json:"messages"`
	Apis        int `json:"apis"`
	OnlineUsers int `json:"online_users"`
}
