// Package gormstore is the embedded (SQLite) backing of the chat store.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Molian/internal/adapters/store"
	"github.com/dkeye/Molian/internal/app/messager"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Repository provides access to chat rooms, members and messages.
type Repository struct {
	db *gorm.DB
}

var _ messager.Store = (*Repository)(nil)

// NewRepository creates a new repository over an open database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Open opens a SQLite database at dsn and migrates the chat tables.
func Open(dsn string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return NewRepository(db), nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&ChatRoom{}, &ChatRoomMember{}, &ChatRoomMessage{}); err != nil {
		return fmt.Errorf("failed to migrate chat tables: %w", err)
	}
	if err := db.Exec(nonceIndexDDL).Error; err != nil {
		return fmt.Errorf("failed to create nonce index: %w", err)
	}
	return nil
}

// nonceIndexDDL makes a client nonce unique per sender and room.
const nonceIndexDDL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_room_messages_room_sender_nonce
	ON chat_room_messages (room_id, sender_id, nonce) WHERE nonce IS NOT NULL`

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RoomMembers reads the current member list; it is never cached.
func (r *Repository) RoomMembers(ctx context.Context, room domain.RoomID) ([]domain.UserID, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&ChatRoomMember{}).
		Where("room_id = ?", string(room)).
		Order("joined_at").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out, nil
}

func (r *Repository) IsMember(ctx context.Context, room domain.RoomID, uid domain.UserID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ChatRoomMember{}).
		Where("room_id = ? AND user_id = ?", string(room), string(uid)).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) ListRooms(ctx context.Context, uid domain.UserID) ([]domain.Room, error) {
	var rows []ChatRoom
	err := r.db.WithContext(ctx).
		Select("chat_rooms.*").
		Joins("INNER JOIN chat_room_members m ON m.room_id = chat_rooms.id").
		Where("m.user_id = ?", string(uid)).
		Order("chat_rooms.last_message_at DESC NULLS LAST, chat_rooms.created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	out := make([]domain.Room, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *Repository) GetRoom(ctx context.Context, room domain.RoomID) (domain.Room, error) {
	var row ChatRoom
	if err := r.db.WithContext(ctx).First(&row, "id = ?", string(room)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Room{}, domain.ErrNotFound
		}
		return domain.Room{}, fmt.Errorf("failed to find room: %w", err)
	}
	return row.toDomain(), nil
}

// CreateRoom inserts the room, its owner and the other members in one
// transaction and keeps member_count in step.
func (r *Repository) CreateRoom(ctx context.Context, in domain.NewRoom) (domain.Room, error) {
	row := ChatRoom{
		ID:          string(in.ID),
		Name:        in.Name,
		Type:        string(in.Type),
		Description: in.Description,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		owner := ChatRoomMember{ID: uuid.NewString(), RoomID: row.ID, UserID: string(in.Owner), Role: domain.RoleOwner}
		if err := tx.Create(&owner).Error; err != nil {
			return err
		}
		for _, uid := range store.Unique(in.Members, in.Owner) {
			m := ChatRoomMember{ID: uuid.NewString(), RoomID: row.ID, UserID: string(uid), Role: domain.RoleMember}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
				return err
			}
		}
		var n int64
		if err := tx.Model(&ChatRoomMember{}).Where("room_id = ?", row.ID).Count(&n).Error; err != nil {
			return err
		}
		row.MemberCount = int(n)
		return tx.Model(&ChatRoom{}).Where("id = ?", row.ID).Update("member_count", n).Error
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to create room: %w", err)
	}
	return row.toDomain(), nil
}

func (r *Repository) FindDirectRoom(ctx context.Context, a, b domain.UserID) (domain.Room, error) {
	var row ChatRoom
	err := r.db.WithContext(ctx).
		Select("chat_rooms.*").
		Joins("INNER JOIN chat_room_members m1 ON m1.room_id = chat_rooms.id AND m1.user_id = ?", string(a)).
		Joins("INNER JOIN chat_room_members m2 ON m2.room_id = chat_rooms.id AND m2.user_id = ?", string(b)).
		Where("chat_rooms.type = ? AND chat_rooms.member_count = 2", string(domain.RoomDirect)).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Room{}, domain.ErrNotFound
		}
		return domain.Room{}, fmt.Errorf("failed to find direct room: %w", err)
	}
	return row.toDomain(), nil
}

func (r *Repository) ListMessages(ctx context.Context, room domain.RoomID, offset, take int) ([]domain.Message, error) {
	var rows []ChatRoomMessage
	err := r.db.WithContext(ctx).
		Where("room_id = ?", string(room)).
		Order("created_at ASC, id ASC").
		Limit(take).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	out := make([]domain.Message, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *Repository) GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	return r.firstMessage(r.db.WithContext(ctx), "id = ?", string(id))
}

func (r *Repository) FindByNonce(ctx context.Context, room domain.RoomID, sender domain.UserID, nonce string) (domain.Message, error) {
	return r.firstMessage(r.db.WithContext(ctx), "room_id = ? AND sender_id = ? AND nonce = ?", string(room), string(sender), nonce)
}

func (r *Repository) firstMessage(db *gorm.DB, query string, args ...any) (domain.Message, error) {
	var row ChatRoomMessage
	if err := db.Where(query, args...).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Message{}, domain.ErrNotFound
		}
		return domain.Message{}, fmt.Errorf("failed to find message: %w", err)
	}
	return row.toDomain(), nil
}

func (r *Repository) InsertMessage(ctx context.Context, in domain.NewMessage) (domain.Message, error) {
	now := time.Now().UTC()
	row := ChatRoomMessage{
		ID:          string(in.ID),
		RoomID:      string(in.RoomID),
		SenderID:    string(in.SenderID),
		Content:     in.Content,
		CreatedAt:   now,
		UpdatedAt:   now,
		Nonce:       in.Nonce,
		ReplyID:     store.StringPtr(in.ReplyID),
		ForwardedID: store.StringPtr(in.ForwardedID),
		Attachments: store.Attachments(in.Attachments),
		Reactions:   store.EmptyReactions,
		Meta:        store.EncodeMeta(in.Meta),
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Model(&ChatRoom{}).Where("id = ?", row.RoomID).Update("last_message_at", now).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.Message{}, fmt.Errorf("%w: nonce already used", domain.ErrConflict)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return row.toDomain(), nil
}

func (r *Repository) UpdateContent(ctx context.Context, id domain.MessageID, content string) (domain.Message, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&ChatRoomMessage{}).Where("id = ?", string(id)).
		Updates(map[string]any{"content": content, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return domain.Message{}, fmt.Errorf("failed to update message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Message{}, domain.ErrNotFound
	}
	return r.firstMessage(db, "id = ?", string(id))
}

func (r *Repository) SoftDelete(ctx context.Context, id domain.MessageID) error {
	res := r.db.WithContext(ctx).Model(&ChatRoomMessage{}).Where("id = ?", string(id)).
		Update("deleted_at", time.Now().UTC())
	if res.Error != nil {
		return fmt.Errorf("failed to delete message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) MutateReactions(ctx context.Context, id domain.MessageID, fn func(domain.Reactions) bool) (domain.Message, error) {
	var out domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := r.firstMessage(tx, "id = ?", string(id))
		if err != nil {
			return err
		}
		if fn(msg.Reactions) {
			encoded, err := store.EncodeReactions(msg.Reactions)
			if err != nil {
				return err
			}
			if err := tx.Model(&ChatRoomMessage{}).Where("id = ?", string(id)).Update("reactions", encoded).Error; err != nil {
				return err
			}
		}
		out = msg
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Message{}, err
		}
		return domain.Message{}, fmt.Errorf("failed to update reactions: %w", err)
	}
	return out, nil
}
