package pgstore

import (
	"context"
	"fmt"
)

var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS chat_rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'direct',
		description TEXT,
		avatar_url TEXT,
		member_count INTEGER NOT NULL DEFAULT 0,
		last_message_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_room_members (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (room_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_room_members_user ON chat_room_members (user_id)`,
	`CREATE TABLE IF NOT EXISTS chat_room_messages (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ,
		nonce TEXT,
		reply_id TEXT,
		forwarded_id TEXT,
		attachments TEXT NOT NULL DEFAULT '[]',
		reactions TEXT NOT NULL DEFAULT '{}',
		meta TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_room_messages_room ON chat_room_messages (room_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_room_messages_nonce ON chat_room_messages (nonce)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_room_messages_room_sender_nonce
		ON chat_room_messages (room_id, sender_id, nonce) WHERE nonce IS NOT NULL`,
}

// EnsureSchema creates the chat tables if they do not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range ddlStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
