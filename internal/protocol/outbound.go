package protocol

import (
	"encoding/json"

	"github.com/dkeye/Molian/internal/domain"
)

type Pong struct {
	Type Type `json:"type"`
}

type TypingNotice struct {
	Type     Type          `json:"type"`
	RoomID   domain.RoomID `json:"chat_room_id"`
	UserID   domain.UserID `json:"user_id"`
	IsTyping bool          `json:"is_typing"`
}

// MessageEvent wraps an already persisted event payload.
type MessageEvent struct {
	Type    EventType       `json:"type"`
	Message json.RawMessage `json:"message"`
}

func EncodePong() ([]byte, error) {
	return json.Marshal(Pong{Type: TypePong})
}

func EncodeTyping(room domain.RoomID, from domain.UserID, isTyping bool) ([]byte, error) {
	return json.Marshal(TypingNotice{
		Type:     TypeTypingNotice,
		RoomID:   room,
		UserID:   from,
		IsTyping: isTyping,
	})
}

func EncodeEvent(event EventType, message json.RawMessage) ([]byte, error) {
	if len(message) == 0 {
		message = json.RawMessage("null")
	}
	return json.Marshal(MessageEvent{Type: event, Message: message})
}
