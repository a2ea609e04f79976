package gormstore

import (
	"time"

	"github.com/dkeye/Molian/internal/adapters/store"
	"github.com/dkeye/Molian/internal/domain"
)

type ChatRoom struct {
	ID            string `gorm:"primarykey;size:36"`
	Name          string `gorm:"not null"`
	Type          string `gorm:"not null;default:direct"`
	Description   *string
	AvatarURL     *string
	MemberCount   int `gorm:"not null;default:0"`
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

func (ChatRoom) TableName() string { return "chat_rooms" }

type ChatRoomMember struct {
	ID       string    `gorm:"primarykey;size:36"`
	RoomID   string    `gorm:"not null;uniqueIndex:idx_chat_room_members_room_user"`
	UserID   string    `gorm:"not null;uniqueIndex:idx_chat_room_members_room_user;index"`
	Role     string    `gorm:"not null;default:member"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

func (ChatRoomMember) TableName() string { return "chat_room_members" }

// ChatRoomMessage keeps deleted rows visible; DeletedAt is a plain column,
// not gorm's soft-delete scope.
type ChatRoomMessage struct {
	ID          string    `gorm:"primarykey;size:36"`
	RoomID      string    `gorm:"not null;index:idx_chat_room_messages_room,priority:1"`
	SenderID    string    `gorm:"not null"`
	Content     string    `gorm:"not null;default:''"`
	CreatedAt   time.Time `gorm:"index:idx_chat_room_messages_room,priority:2"`
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	Nonce       *string `gorm:"index"`
	ReplyID     *string
	ForwardedID *string
	Attachments string `gorm:"not null;default:'[]'"`
	Reactions   string `gorm:"not null;default:'{}'"`
	Meta        *string
}

func (ChatRoomMessage) TableName() string { return "chat_room_messages" }

func (r ChatRoom) toDomain() domain.Room {
	return domain.Room{
		ID:            domain.RoomID(r.ID),
		Name:          r.Name,
		Type:          domain.ParseRoomType(r.Type),
		Description:   r.Description,
		AvatarURL:     r.AvatarURL,
		MemberCount:   r.MemberCount,
		LastMessageAt: r.LastMessageAt,
		CreatedAt:     r.CreatedAt,
	}
}

func (m ChatRoomMessage) toDomain() domain.Message {
	return domain.Message{
		ID:          domain.MessageID(m.ID),
		RoomID:      domain.RoomID(m.RoomID),
		SenderID:    domain.UserID(m.SenderID),
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		DeletedAt:   m.DeletedAt,
		Nonce:       m.Nonce,
		ReplyID:     store.MessageIDPtr(m.ReplyID),
		ForwardedID: store.MessageIDPtr(m.ForwardedID),
		Attachments: store.DecodeAttachments(m.Attachments),
		Reactions:   store.DecodeReactions(m.Reactions),
		Meta:        store.DecodeMeta(m.Meta),
	}
}
