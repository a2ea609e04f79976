// Package pgstore is the PostgreSQL backing of the chat store.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Molian/internal/adapters/store"
	"github.com/dkeye/Molian/internal/app/messager"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is what the repository needs from a pool or a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides access to chat storage over a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

var _ messager.Store = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open connects, pings and applies the schema.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	r := NewRepository(pool)
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

type roomRow struct {
	ID            string     `db:"id"`
	Name          string     `db:"name"`
	Type          string     `db:"type"`
	Description   *string    `db:"description"`
	AvatarURL     *string    `db:"avatar_url"`
	MemberCount   int        `db:"member_count"`
	LastMessageAt *time.Time `db:"last_message_at"`
	CreatedAt     time.Time  `db:"created_at"`
}

type messageRow struct {
	ID          string     `db:"id"`
	RoomID      string     `db:"room_id"`
	SenderID    string     `db:"sender_id"`
	Content     string     `db:"content"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	DeletedAt   *time.Time `db:"deleted_at"`
	Nonce       *string    `db:"nonce"`
	ReplyID     *string    `db:"reply_id"`
	ForwardedID *string    `db:"forwarded_id"`
	Attachments string     `db:"attachments"`
	Reactions   string     `db:"reactions"`
	Meta        *string    `db:"meta"`
}

const (
	roomColumns    = `r.id, r.name, r.type, r.description, r.avatar_url, r.member_count, r.last_message_at, r.created_at`
	messageColumns = `id, room_id, sender_id, content, created_at, updated_at, deleted_at, nonce, reply_id, forwarded_id, attachments, reactions, meta`
)

func (row roomRow) toDomain() domain.Room {
	return domain.Room{
		ID:            domain.RoomID(row.ID),
		Name:          row.Name,
		Type:          domain.ParseRoomType(row.Type),
		Description:   row.Description,
		AvatarURL:     row.AvatarURL,
		MemberCount:   row.MemberCount,
		LastMessageAt: row.LastMessageAt,
		CreatedAt:     row.CreatedAt,
	}
}

func (row messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:          domain.MessageID(row.ID),
		RoomID:      domain.RoomID(row.RoomID),
		SenderID:    domain.UserID(row.SenderID),
		Content:     row.Content,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		DeletedAt:   row.DeletedAt,
		Nonce:       row.Nonce,
		ReplyID:     store.MessageIDPtr(row.ReplyID),
		ForwardedID: store.MessageIDPtr(row.ForwardedID),
		Attachments: store.DecodeAttachments(row.Attachments),
		Reactions:   store.DecodeReactions(row.Reactions),
		Meta:        store.DecodeMeta(row.Meta),
	}
}

// RoomMembers reads the current member list; it is never cached.
func (r *Repository) RoomMembers(ctx context.Context, room domain.RoomID) ([]domain.UserID, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM chat_room_members WHERE room_id = $1 ORDER BY joined_at`, string(room))
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan members: %w", err)
	}
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out, nil
}

func (r *Repository) IsMember(ctx context.Context, room domain.RoomID, uid domain.UserID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_room_members WHERE room_id = $1 AND user_id = $2)`,
		string(room), string(uid)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

func (r *Repository) ListRooms(ctx context.Context, uid domain.UserID) ([]domain.Room, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roomColumns+`
		FROM chat_rooms r
		INNER JOIN chat_room_members m ON m.room_id = r.id
		WHERE m.user_id = $1
		ORDER BY r.last_message_at DESC NULLS LAST, r.created_at DESC`, string(uid))
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[roomRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan rooms: %w", err)
	}
	out := make([]domain.Room, len(list))
	for i, row := range list {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *Repository) GetRoom(ctx context.Context, room domain.RoomID) (domain.Room, error) {
	return r.oneRoom(ctx, r.pool, `SELECT `+roomColumns+` FROM chat_rooms r WHERE r.id = $1`, string(room))
}

func (r *Repository) oneRoom(ctx context.Context, db DBTX, sql string, args ...any) (domain.Room, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to find room: %w", err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[roomRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Room{}, domain.ErrNotFound
		}
		return domain.Room{}, fmt.Errorf("failed to scan room: %w", err)
	}
	return row.toDomain(), nil
}

func (r *Repository) CreateRoom(ctx context.Context, in domain.NewRoom) (domain.Room, error) {
	var out domain.Room
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO chat_rooms (id, name, type, description) VALUES ($1, $2, $3, $4)`,
			string(in.ID), in.Name, string(in.Type), in.Description)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO chat_room_members (id, room_id, user_id, role) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), string(in.ID), string(in.Owner), domain.RoleOwner)
		if err != nil {
			return err
		}
		for _, uid := range store.Unique(in.Members, in.Owner) {
			_, err = tx.Exec(ctx,
				`INSERT INTO chat_room_members (id, room_id, user_id, role) VALUES ($1, $2, $3, $4)
				 ON CONFLICT (room_id, user_id) DO NOTHING`,
				uuid.NewString(), string(in.ID), string(uid), domain.RoleMember)
			if err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx,
			`UPDATE chat_rooms SET member_count = (SELECT COUNT(*) FROM chat_room_members WHERE room_id = $1) WHERE id = $1`,
			string(in.ID))
		if err != nil {
			return err
		}
		out, err = r.oneRoom(ctx, tx, `SELECT `+roomColumns+` FROM chat_rooms r WHERE r.id = $1`, string(in.ID))
		return err
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("failed to create room: %w", err)
	}
	return out, nil
}

func (r *Repository) FindDirectRoom(ctx context.Context, a, b domain.UserID) (domain.Room, error) {
	return r.oneRoom(ctx, r.pool, `SELECT `+roomColumns+`
		FROM chat_rooms r
		INNER JOIN chat_room_members m1 ON m1.room_id = r.id AND m1.user_id = $1
		INNER JOIN chat_room_members m2 ON m2.room_id = r.id AND m2.user_id = $2
		WHERE r.type = 'direct' AND r.member_count = 2
		LIMIT 1`, string(a), string(b))
}

func (r *Repository) ListMessages(ctx context.Context, room domain.RoomID, offset, take int) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+messageColumns+`
		FROM chat_room_messages WHERE room_id = $1
		ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`, string(room), take, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan messages: %w", err)
	}
	out := make([]domain.Message, len(list))
	for i, row := range list {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *Repository) oneMessage(ctx context.Context, db DBTX, where string, args ...any) (domain.Message, error) {
	rows, err := db.Query(ctx, `SELECT `+messageColumns+` FROM chat_room_messages WHERE `+where, args...)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to find message: %w", err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Message{}, domain.ErrNotFound
		}
		return domain.Message{}, fmt.Errorf("failed to scan message: %w", err)
	}
	return row.toDomain(), nil
}

func (r *Repository) GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	return r.oneMessage(ctx, r.pool, `id = $1`, string(id))
}

func (r *Repository) FindByNonce(ctx context.Context, room domain.RoomID, sender domain.UserID, nonce string) (domain.Message, error) {
	return r.oneMessage(ctx, r.pool, `room_id = $1 AND sender_id = $2 AND nonce = $3 LIMIT 1`, string(room), string(sender), nonce)
}

func (r *Repository) InsertMessage(ctx context.Context, in domain.NewMessage) (domain.Message, error) {
	var out domain.Message
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		_, err := tx.Exec(ctx, `INSERT INTO chat_room_messages
			(id, room_id, sender_id, content, created_at, updated_at, nonce, reply_id, forwarded_id, attachments, reactions, meta)
			VALUES ($1, $2, $3, $4, $5, $5, $6, $7, $8, $9, $10, $11)`,
			string(in.ID), string(in.RoomID), string(in.SenderID), in.Content, now,
			in.Nonce, store.StringPtr(in.ReplyID), store.StringPtr(in.ForwardedID),
			store.Attachments(in.Attachments), store.EmptyReactions, store.EncodeMeta(in.Meta))
		if err != nil {
			return err
		}
		if _, err = tx.Exec(ctx, `UPDATE chat_rooms SET last_message_at = $2 WHERE id = $1`, string(in.RoomID), now); err != nil {
			return err
		}
		out, err = r.oneMessage(ctx, tx, `id = $1`, string(in.ID))
		return err
	})
	if isUniqueViolation(err) {
		return domain.Message{}, fmt.Errorf("%w: nonce already used", domain.ErrConflict)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return out, nil
}

func (r *Repository) UpdateContent(ctx context.Context, id domain.MessageID, content string) (domain.Message, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_room_messages SET content = $2, updated_at = now() WHERE id = $1`, string(id), content)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Message{}, domain.ErrNotFound
	}
	return r.GetMessage(ctx, id)
}

func (r *Repository) SoftDelete(ctx context.Context, id domain.MessageID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE chat_room_messages SET deleted_at = now() WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) MutateReactions(ctx context.Context, id domain.MessageID, fn func(domain.Reactions) bool) (domain.Message, error) {
	var out domain.Message
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		msg, err := r.oneMessage(ctx, tx, `id = $1 FOR UPDATE`, string(id))
		if err != nil {
			return err
		}
		if fn(msg.Reactions) {
			encoded, err := store.EncodeReactions(msg.Reactions)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE chat_room_messages SET reactions = $2 WHERE id = $1`, string(id), encoded); err != nil {
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

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
