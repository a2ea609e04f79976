package domain

import "time"

type (
	RoomID   string
	RoomType string
)

const (
	RoomDirect RoomType = "direct"
	RoomGroup  RoomType = "group"
)

// ParseRoomType falls back to direct for anything but "group".
func ParseRoomType(s string) RoomType {
	if RoomType(s) == RoomGroup {
		return RoomGroup
	}
	return RoomDirect
}

type Room struct {
	ID            RoomID     `json:"id"`
	Name          string     `json:"name"`
	Type          RoomType   `json:"type"`
	Description   *string    `json:"description"`
	AvatarURL     *string    `json:"avatar_url"`
	MemberCount   int        `json:"member_count"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
}
