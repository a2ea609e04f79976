package domain

import (
	"encoding/json"
	"slices"
	"time"
)

type MessageID string

// Reactions maps an emoji to the users who reacted with it.
type Reactions map[string][]UserID

// Add reports whether uid was not already present.
func (r Reactions) Add(emoji string, uid UserID) bool {
	if slices.Contains(r[emoji], uid) {
		return false
	}
	r[emoji] = append(r[emoji], uid)
	return true
}

// Remove drops uid and deletes the emoji once nobody is left.
func (r Reactions) Remove(emoji string, uid UserID) bool {
	users, ok := r[emoji]
	if !ok {
		return false
	}
	idx := slices.Index(users, uid)
	if idx < 0 {
		return false
	}
	users = slices.Delete(users, idx, idx+1)
	if len(users) == 0 {
		delete(r, emoji)
	} else {
		r[emoji] = users
	}
	return true
}

// Message is a persisted chat room message.
type Message struct {
	ID           MessageID       `json:"id"`
	RoomID       RoomID          `json:"room_id"`
	SenderID     UserID          `json:"sender_id"`
	Content      string          `json:"content"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    *time.Time      `json:"deleted_at"`
	Nonce        *string         `json:"nonce"`
	ReplyID      *MessageID      `json:"reply_id"`
	ForwardedID  *MessageID      `json:"forwarded_id"`
	Attachments  json.RawMessage `json:"attachments"`
	Reactions    Reactions       `json:"reactions"`
	Meta         json.RawMessage `json:"meta"`
	ReplyMessage *Message        `json:"reply_message"`
}

// NewMessage is what the REST layer asks a store to persist.
type NewMessage struct {
	ID          MessageID
	RoomID      RoomID
	SenderID    UserID
	Content     string
	Nonce       *string
	ReplyID     *MessageID
	ForwardedID *MessageID
	Attachments json.RawMessage
	Meta        json.RawMessage
}

// NewRoom is the input for creating a room with its initial members.
type NewRoom struct {
	ID          RoomID
	Name        string
	Type        RoomType
	Description *string
	Owner       UserID
	Members     []UserID
}
