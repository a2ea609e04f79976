package core

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Molian/internal/domain"
	"github.com/dkeye/Molian/internal/protocol"
)

// Frame is a serialized text frame ready for the wire.
type Frame []byte

type ConnID string

// Conn is a live socket tagged with exactly one user at accept time.
// The tag is read from the connection itself, never from a side table.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	ID() ConnID
	UserID() domain.UserID
	// TrySend enqueues without blocking.
	TrySend(Frame) error
	Close()
}

// ConnRegistry resolves a user identity to its live connections.
// Implementations must be safe for concurrent use.
type ConnRegistry interface {
	Add(c Conn)
	// Remove drops only c; other connections of the same user stay.
	Remove(c Conn) bool
	Lookup(uid domain.UserID) []Conn
	Stats() RegistryStats
	// CloseAll closes and forgets every connection.
	CloseAll()
}

type RegistryStats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

// MembershipStore answers "who is in room R now". It is queried on every
// broadcast and never cached.
type MembershipStore interface {
	RoomMembers(ctx context.Context, room domain.RoomID) ([]domain.UserID, error)
}

// Verifier turns a bearer credential into a user identity.
type Verifier interface {
	Verify(token string) (domain.UserID, error)
}

// Broadcaster is the trigger the REST layer uses after persisting an event.
type Broadcaster interface {
	Broadcast(ctx context.Context, room domain.RoomID, event protocol.EventType, message json.RawMessage) (PublishResult, error)
}

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	Members int
	SendTo  int
	Dropped []Conn
}
