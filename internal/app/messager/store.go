package messager

import (
	"context"

	"github.com/dkeye/Molian/internal/core"
	"github.com/dkeye/Molian/internal/domain"
)

// Store is the persistence the messager needs. Lookups of missing rows
// return domain.ErrNotFound.
type Store interface {
	core.MembershipStore

	IsMember(ctx context.Context, room domain.RoomID, uid domain.UserID) (bool, error)
	ListRooms(ctx context.Context, uid domain.UserID) ([]domain.Room, error)
	GetRoom(ctx context.Context, room domain.RoomID) (domain.Room, error)
	CreateRoom(ctx context.Context, in domain.NewRoom) (domain.Room, error)
	FindDirectRoom(ctx context.Context, a, b domain.UserID) (domain.Room, error)

	ListMessages(ctx context.Context, room domain.RoomID, offset, take int) ([]domain.Message, error)
	GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error)
	FindByNonce(ctx context.Context, room domain.RoomID, sender domain.UserID, nonce string) (domain.Message, error)
	// InsertMessage also bumps the room's last_message_at.
	InsertMessage(ctx context.Context, in domain.NewMessage) (domain.Message, error)
	UpdateContent(ctx context.Context, id domain.MessageID, content string) (domain.Message, error)
	SoftDelete(ctx context.Context, id domain.MessageID) error
	// MutateReactions runs fn on the current reactions inside one
	// transaction and writes them back when fn reports a change.
	MutateReactions(ctx context.Context, id domain.MessageID, fn func(domain.Reactions) bool) (domain.Message, error)
}
