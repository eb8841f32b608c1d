package server

import (
	"encoding/json"
	"time"

	"github.com/npezzotti/go-devhub/internal/database"
	"github.com/npezzotti/go-devhub/internal/types"
)

// DefaultRoom is the room every connection is placed in on connect.
const DefaultRoom = "general"

const (
	EventUserJoined  = "user_joined"
	EventUserLeft    = "user_left"
	EventJoinRoom    = "join_room"
	EventChatMessage = "chat_message"
	EventOnlineUsers = "online_users"
	EventUserBadges  = "user_badges"
	EventError       = "error"
)

// ClientEvent is a frame received from a connection.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is a frame queued for delivery to one or more connections.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ChatPayload is the data of an inbound chat_message event. The client
// timestamp is accepted but the stored message always carries server time.
type ChatPayload struct {
	UserId    int                   `json:"userId"`
	Text      string                `json:"text"`
	Room      string                `json:"room"`
	Timestamp json.RawMessage       `json:"timestamp,omitempty"`
	Type      types.MessageType     `json:"type,omitempty"`
	Code      *types.CodeSnippet    `json:"code,omitempty"`
	File      *types.FileAttachment `json:"file,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func newServerEvent(name string, data any) *ServerEvent {
	return &ServerEvent{Event: name, Data: data}
}

func errorEvent(message string) *ServerEvent {
	return newServerEvent(EventError, ErrorPayload{Message: message})
}

// MessageFromRecord converts a stored message and its author into the wire form.
func MessageFromRecord(rec database.MessageWithAuthor) types.Message {
	msg := types.Message{
		Id:     rec.Id,
		UserId: rec.UserId,
		Author: types.Author{
			Id:          rec.UserId,
			Username:    rec.Username,
			DisplayName: rec.DisplayName,
			Avatar:      rec.Avatar,
			Verified:    rec.Verified,
		},
		Text:      rec.Text,
		Room:      rec.Room,
		Type:      types.MessageType(rec.Type),
		Timestamp: rec.CreatedAt,
	}

	if msg.Author.DisplayName == "" {
		msg.Author.DisplayName = rec.Username
	}
	if rec.Code != "" {
		msg.Code = &types.CodeSnippet{Language: rec.CodeLanguage, Code: rec.Code}
	}
	if rec.FileUrl != "" {
		msg.File = &types.FileAttachment{Name: rec.FileName, Url: rec.FileUrl}
	}

	return msg
}

func badgesFromRecords(recs []database.Badge) []types.Badge {
	badges := make([]types.Badge, 0, len(recs))
	for _, b := range recs {
		badges = append(badges, types.Badge{
			Id:        b.Id,
			Name:      b.Name,
			Icon:      b.Icon,
			AwardedAt: b.AwardedAt,
		})
	}
	return badges
}

// messageType resolves the stored discriminator from an explicit type or the attached payload.
func (p *ChatPayload) messageType() types.MessageType {
	switch p.Type {
	case types.MessageTypeText, types.MessageTypeCode, types.MessageTypeFile:
		return p.Type
	}

	switch {
	case p.Code != nil:
		return types.MessageTypeCode
	case p.File != nil:
		return types.MessageTypeFile
	default:
		return types.MessageTypeText
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
