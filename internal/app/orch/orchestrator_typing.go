package orch

import (
	"context"
	"slices"

	"github.com/dkeye/Molian/internal/core"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/dkeye/Molian/internal/protocol"
	"github.com/rs/zerolog/log"
)

// RelayTyping forwards an ephemeral typing notice from the user tagged on
// from to every other current member of room. Nothing is persisted and the
// sender never receives its own notice.
func (o *Orchestrator) RelayTyping(ctx context.Context, from core.Conn, room domain.RoomID, isTyping bool) (core.PublishResult, error) {
	sender := from.UserID()

	members, err := o.roomMembers(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room)).Str("user", string(sender)).Msg("typing relay abandoned: membership lookup failed")
		return core.PublishResult{}, err
	}
	if !slices.Contains(members, sender) {
		return core.PublishResult{}, ErrNotMember
	}

	frame, err := protocol.EncodeTyping(room, sender, isTyping)
	if err != nil {
		return core.PublishResult{}, err
	}
	res := o.fanOut(members, core.Frame(frame), sender)
	log.Debug().Str("module", "orch").Str("room", string(room)).Str("user", string(sender)).Bool("is_typing", isTyping).Int("sent_to", res.SendTo).Msg("typing relayed")
	return res, nil
}
