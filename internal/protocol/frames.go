// Package protocol defines the JSON text frames exchanged over the chat socket.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Molian/internal/domain"
	"github.com/tidwall/gjson"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown frame type")
	ErrUnknownEvent   = errors.New("unknown event type")
)

type Type string

const (
	TypePing        Type = "ping"
	TypeTyping      Type = "typing"
	TypeSubscribe   Type = "messages.subscribe"
	TypeUnsubscribe Type = "messages.unsubscribe"

	TypePong         Type = "pong"
	TypeTypingNotice Type = "messages.typing"
)

// EventType is the closed set of room events a broadcast may carry.
type EventType string

const (
	EventNew             EventType = "messages.new"
	EventUpdate          EventType = "messages.update"
	EventDelete          EventType = "messages.delete"
	EventReactionAdded   EventType = "messages.reaction.added"
	EventReactionRemoved EventType = "messages.reaction.removed"
)

func ParseEventType(s string) (EventType, error) {
	switch e := EventType(s); e {
	case EventNew, EventUpdate, EventDelete, EventReactionAdded, EventReactionRemoved:
		return e, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
	}
}

// RoomRef accepts a room id sent either as a JSON string or a JSON number.
type RoomRef string

func (r *RoomRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = RoomRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("chat_room_id: %w", err)
	}
	*r = RoomRef(n.String())
	return nil
}

func (r RoomRef) RoomID() domain.RoomID { return domain.RoomID(r) }

// Inbound is a decoded client frame. The set of implementations is closed.
type Inbound interface {
	Type() Type
	inbound()
}

type Ping struct{}

type Typing struct {
	RoomID   RoomRef `json:"chat_room_id"`
	IsTyping bool    `json:"is_typing"`
}

// Subscribe and Unsubscribe are accepted for old clients and do nothing.
type Subscribe struct {
	RoomID RoomRef `json:"chat_room_id"`
}

type Unsubscribe struct {
	RoomID RoomRef `json:"chat_room_id"`
}

func (Ping) Type() Type        { return TypePing }
func (Typing) Type() Type      { return TypeTyping }
func (Subscribe) Type() Type   { return TypeSubscribe }
func (Unsubscribe) Type() Type { return TypeUnsubscribe }

func (Ping) inbound()        {}
func (Typing) inbound()      {}
func (Subscribe) inbound()   {}
func (Unsubscribe) inbound() {}

// Decode parses a client frame. Invalid JSON yields ErrMalformedFrame, a
// missing or unknown type yields ErrUnknownType.
func Decode(data []byte) (Inbound, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedFrame
	}
	t := gjson.GetBytes(data, "type")
	if t.Type != gjson.String {
		return nil, ErrUnknownType
	}

	switch Type(t.Str) {
	case TypePing:
		return Ping{}, nil
	case TypeTyping:
		var f Typing
		if err := decodeInto(data, &f); err != nil {
			return nil, err
		}
		if f.RoomID == "" {
			return nil, fmt.Errorf("%w: typing without chat_room_id", ErrMalformedFrame)
		}
		return f, nil
	case TypeSubscribe:
		var f Subscribe
		if err := decodeInto(data, &f); err != nil {
			return nil, err
		}
		return f, nil
	case TypeUnsubscribe:
		var f Unsubscribe
		if err := decodeInto(data, &f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t.Str)
	}
}

func decodeInto(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}
