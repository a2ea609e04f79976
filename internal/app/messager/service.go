// Package messager is the REST-facing side of chat: rooms, messages and
// reactions. Every mutation is persisted first and only then handed to the
// broadcaster, so a live frame always describes a stored row.
package messager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/Molian/internal/core"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/dkeye/Molian/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTake = 50
	MaxTake     = 100

	maxNameLen  = 128
	maxEmojiLen = 16
)

type Service struct {
	Store       Store
	Broadcaster core.Broadcaster

	direct singleflight.Group
}

func NewService(store Store, b core.Broadcaster) *Service {
	return &Service{Store: store, Broadcaster: b}
}

type CreateRoomInput struct {
	Name        string
	Type        string
	Description *string
	MemberIDs   []domain.UserID
}

type SendInput struct {
	Content     string
	Nonce       *string
	Attachments json.RawMessage
	ReplyID     *domain.MessageID
	ForwardedID *domain.MessageID
	Meta        json.RawMessage
}

// DeletedEvent is the payload of messages.delete.
type DeletedEvent struct {
	MessageID domain.MessageID `json:"message_id"`
	RoomID    domain.RoomID    `json:"room_id"`
}

// ReactionEvent is the payload of messages.reaction.added and .removed.
type ReactionEvent struct {
	MessageID domain.MessageID `json:"message_id"`
	RoomID    domain.RoomID    `json:"room_id"`
	Emoji     string           `json:"emoji"`
	UserID    domain.UserID    `json:"user_id"`
}

// ClampPage normalizes paging arguments from a query string.
func ClampPage(offset, take int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	switch {
	case take <= 0:
		take = DefaultTake
	case take > MaxTake:
		take = MaxTake
	}
	return offset, take
}

func (s *Service) ListRooms(ctx context.Context, uid domain.UserID) ([]domain.Room, error) {
	return s.Store.ListRooms(ctx, uid)
}

func (s *Service) CreateRoom(ctx context.Context, owner domain.UserID, in CreateRoomInput) (domain.Room, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return domain.Room{}, fmt.Errorf("%w: room name", domain.ErrInvalidInput)
	}
	for _, id := range in.MemberIDs {
		if !id.Valid() {
			return domain.Room{}, fmt.Errorf("%w: member id %q", domain.ErrInvalidInput, id)
		}
	}
	room, err := s.Store.CreateRoom(ctx, domain.NewRoom{
		ID:          domain.RoomID(uuid.NewString()),
		Name:        name,
		Type:        domain.ParseRoomType(in.Type),
		Description: in.Description,
		Owner:       owner,
		Members:     in.MemberIDs,
	})
	if err != nil {
		return domain.Room{}, err
	}
	log.Info().Str("module", "app.messager").Str("room", string(room.ID)).Str("user", string(owner)).
		Int("members", room.MemberCount).Msg("room created")
	return room, nil
}

// DirectRoom returns the two-person room of uid and peer, creating it on
// first use. created reports whether this call made the room. Concurrent
// first requests for the same pair share one creation.
func (s *Service) DirectRoom(ctx context.Context, uid, peer domain.UserID) (room domain.Room, created bool, err error) {
	if !peer.Valid() || peer == uid {
		return domain.Room{}, false, fmt.Errorf("%w: peer id", domain.ErrInvalidInput)
	}
	key := string(uid) + "\x00" + string(peer)
	if peer < uid {
		key = string(peer) + "\x00" + string(uid)
	}
	// created is set only by the caller whose function runs; sharers see false
	v, err, _ := s.direct.Do(key, func() (any, error) {
		room, err := s.Store.FindDirectRoom(ctx, uid, peer)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		room, err = s.CreateRoom(ctx, uid, CreateRoomInput{
			Name:      string(peer),
			Type:      string(domain.RoomDirect),
			MemberIDs: []domain.UserID{peer},
		})
		if err != nil {
			return nil, err
		}
		created = true
		return room, nil
	})
	if err != nil {
		return domain.Room{}, false, err
	}
	return v.(domain.Room), created, nil
}

// GetRoom checks membership first so a non-member cannot tell which room
// ids exist.
func (s *Service) GetRoom(ctx context.Context, uid domain.UserID, id domain.RoomID) (domain.Room, error) {
	if err := s.requireMember(ctx, id, uid); err != nil {
		return domain.Room{}, err
	}
	return s.Store.GetRoom(ctx, id)
}

// ListMessages returns a page in creation order with reply_message filled
// one level deep.
func (s *Service) ListMessages(ctx context.Context, uid domain.UserID, room domain.RoomID, offset, take int) ([]domain.Message, error) {
	if err := s.requireMember(ctx, room, uid); err != nil {
		return nil, err
	}
	offset, take = ClampPage(offset, take)
	list, err := s.Store.ListMessages(ctx, room, offset, take)
	if err != nil {
		return nil, err
	}

	page := make(map[domain.MessageID]domain.Message, len(list))
	for _, m := range list {
		page[m.ID] = m
	}
	for i := range list {
		if list[i].ReplyID == nil {
			continue
		}
		reply, ok := page[*list[i].ReplyID]
		if !ok {
			reply, err = s.Store.GetMessage(ctx, *list[i].ReplyID)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			page[reply.ID] = reply
		}
		if reply.RoomID != room {
			continue
		}
		list[i].ReplyMessage = &reply
	}
	return list, nil
}

// SendMessage persists a message and broadcasts messages.new. A nonce the
// sender already used in this room returns the stored message and sends
// nothing.
func (s *Service) SendMessage(ctx context.Context, uid domain.UserID, room domain.RoomID, in SendInput) (domain.Message, error) {
	if err := s.requireMember(ctx, room, uid); err != nil {
		return domain.Message{}, err
	}
	if strings.TrimSpace(in.Content) == "" && emptyList(in.Attachments) && in.ForwardedID == nil {
		return domain.Message{}, fmt.Errorf("%w: empty message", domain.ErrInvalidInput)
	}
	if in.Nonce != nil && *in.Nonce == "" {
		in.Nonce = nil
	}
	if in.Nonce != nil {
		prev, err := s.Store.FindByNonce(ctx, room, uid, *in.Nonce)
		if err == nil {
			s.logDuplicate(room, uid, *in.Nonce)
			return prev, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Message{}, err
		}
	}
	if err := s.checkRefs(ctx, uid, room, in); err != nil {
		return domain.Message{}, err
	}

	msg, err := s.Store.InsertMessage(ctx, domain.NewMessage{
		ID:          domain.MessageID(uuid.NewString()),
		RoomID:      room,
		SenderID:    uid,
		Content:     in.Content,
		Nonce:       in.Nonce,
		ReplyID:     in.ReplyID,
		ForwardedID: in.ForwardedID,
		Attachments: in.Attachments,
		Meta:        in.Meta,
	})
	if errors.Is(err, domain.ErrConflict) && in.Nonce != nil {
		// a concurrent send with the same nonce won the insert
		prev, ferr := s.Store.FindByNonce(ctx, room, uid, *in.Nonce)
		if ferr != nil {
			return domain.Message{}, ferr
		}
		s.logDuplicate(room, uid, *in.Nonce)
		return prev, nil
	}
	if err != nil {
		return domain.Message{}, err
	}
	s.publish(ctx, room, protocol.EventNew, msg)
	return msg, nil
}

// checkRefs requires a reply target in the same room and a forwarded message
// from a room the sender belongs to.
func (s *Service) checkRefs(ctx context.Context, uid domain.UserID, room domain.RoomID, in SendInput) error {
	if in.ReplyID != nil {
		if _, err := s.roomMessage(ctx, room, *in.ReplyID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: reply_id", domain.ErrInvalidInput)
			}
			return err
		}
	}
	if in.ForwardedID != nil {
		fwd, err := s.Store.GetMessage(ctx, *in.ForwardedID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: forwarded_id", domain.ErrInvalidInput)
		}
		if err != nil {
			return err
		}
		ok, err := s.Store.IsMember(ctx, fwd.RoomID, uid)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: forwarded_id", domain.ErrInvalidInput)
		}
	}
	return nil
}

func (s *Service) logDuplicate(room domain.RoomID, uid domain.UserID, nonce string) {
	log.Debug().Str("module", "app.messager").Str("room", string(room)).Str("user", string(uid)).
		Str("nonce", nonce).Msg("duplicate nonce, returning stored message")
}

func (s *Service) EditMessage(ctx context.Context, uid domain.UserID, room domain.RoomID, id domain.MessageID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, fmt.Errorf("%w: empty content", domain.ErrInvalidInput)
	}
	if _, err := s.ownMessage(ctx, uid, room, id); err != nil {
		return domain.Message{}, err
	}
	msg, err := s.Store.UpdateContent(ctx, id, content)
	if err != nil {
		return domain.Message{}, err
	}
	s.publish(ctx, room, protocol.EventUpdate, msg)
	return msg, nil
}

func (s *Service) DeleteMessage(ctx context.Context, uid domain.UserID, room domain.RoomID, id domain.MessageID) error {
	if _, err := s.ownMessage(ctx, uid, room, id); err != nil {
		return err
	}
	if err := s.Store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, room, protocol.EventDelete, DeletedEvent{MessageID: id, RoomID: room})
	return nil
}

func (s *Service) AddReaction(ctx context.Context, uid domain.UserID, room domain.RoomID, id domain.MessageID, emoji string) (domain.Message, error) {
	return s.react(ctx, uid, room, id, emoji, true)
}

func (s *Service) RemoveReaction(ctx context.Context, uid domain.UserID, room domain.RoomID, id domain.MessageID, emoji string) (domain.Message, error) {
	return s.react(ctx, uid, room, id, emoji, false)
}

func (s *Service) react(ctx context.Context, uid domain.UserID, room domain.RoomID, id domain.MessageID, emoji string, add bool) (domain.Message, error) {
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLen {
		return domain.Message{}, fmt.Errorf("%w: emoji", domain.ErrInvalidInput)
	}
	if err := s.requireMember(ctx, room, uid); err != nil {
		return domain.Message{}, err
	}
	if _, err := s.roomMessage(ctx, room, id); err != nil {
		return domain.Message{}, err
	}

	var changed bool
	msg, err := s.Store.MutateReactions(ctx, id, func(r domain.Reactions) bool {
		if add {
			changed = r.Add(emoji, uid)
		} else {
			changed = r.Remove(emoji, uid)
		}
		return changed
	})
	if err != nil {
		return domain.Message{}, err
	}
	if !changed {
		return msg, nil
	}

	event := protocol.EventReactionRemoved
	if add {
		event = protocol.EventReactionAdded
	}
	s.publish(ctx, room, event, ReactionEvent{MessageID: id, RoomID: room, Emoji: emoji, UserID: uid})
	return msg, nil
}

func (s *Service) requireMember(ctx context.Context, room domain.RoomID, uid domain.UserID) error {
	ok, err := s.Store.IsMember(ctx, room, uid)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrForbidden
	}
	return nil
}

func (s *Service) roomMessage(ctx context.Context, room domain.RoomID, id domain.MessageID) (domain.Message, error) {
	msg, err := s.Store.GetMessage(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	if msg.RoomID != room {
		return domain.Message{}, domain.ErrNotFound
	}
	return msg, nil
}

// ownMessage loads a live message of room that uid sent.
func (s *Service) ownMessage(ctx context.Context, uid domain.UserID, room domain.RoomID, id domain.MessageID) (domain.Message, error) {
	msg, err := s.roomMessage(ctx, room, id)
	if err != nil {
		return domain.Message{}, err
	}
	if msg.SenderID != uid {
		return domain.Message{}, domain.ErrForbidden
	}
	if msg.DeletedAt != nil {
		return domain.Message{}, domain.ErrNotFound
	}
	return msg, nil
}

// publish never fails the caller: the row is already stored.
func (s *Service) publish(ctx context.Context, room domain.RoomID, event protocol.EventType, payload any) {
	if s.Broadcaster == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.messager").Str("room", string(room)).Str("type", string(event)).Msg("failed to encode event")
		return
	}
	if _, err := s.Broadcaster.Broadcast(ctx, room, event, raw); err != nil {
		log.Warn().Err(err).Str("module", "app.messager").Str("room", string(room)).Str("type", string(event)).Msg("broadcast failed")
	}
}

func emptyList(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "[]":
		return true
	}
	return false
}
