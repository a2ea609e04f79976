// Package orch holds the room actor: the single fan-out authority of a
// deployment. It owns the connection registry and reads membership fresh
// from the store on every event.
package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Molian/internal/app"
	"github.com/dkeye/Molian/internal/core"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/dkeye/Molian/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrNotMember = errors.New("sender is not a room member")

type Orchestrator struct {
	Registry core.ConnRegistry
	Members  core.MembershipStore
	Policy   app.Policy
	// LookupTimeout bounds one membership query; zero means no bound.
	LookupTimeout time.Duration
}

func New(reg core.ConnRegistry, members core.MembershipStore, policy app.Policy) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Members:  members,
		Policy:   policy,
	}
}

var _ core.Broadcaster = (*Orchestrator)(nil)

// Broadcast delivers an already persisted event to every live connection of
// every current member of room. Delivery is at-most-once: no ack, no retry,
// no queue for offline members. The caller giving up does not cut the
// fan-out short.
func (o *Orchestrator) Broadcast(ctx context.Context, room domain.RoomID, event protocol.EventType, message json.RawMessage) (core.PublishResult, error) {
	frame, err := protocol.EncodeEvent(event, message)
	if err != nil {
		return core.PublishResult{}, fmt.Errorf("encode %s: %w", event, err)
	}

	members, err := o.roomMembers(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room)).Str("type", string(event)).Msg("broadcast abandoned: membership lookup failed")
		return core.PublishResult{}, err
	}

	res := o.fanOut(members, core.Frame(frame), "")
	log.Debug().Str("module", "orch").Str("room", string(room)).Str("type", string(event)).
		Int("members", res.Members).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res, nil
}

func (o *Orchestrator) roomMembers(ctx context.Context, room domain.RoomID) ([]domain.UserID, error) {
	ctx = context.WithoutCancel(ctx)
	if o.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.LookupTimeout)
		defer cancel()
	}
	members, err := o.Members.RoomMembers(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("room %s members: %w", room, err)
	}
	return members, nil
}

// fanOut sends frame to each connection independently; one failed send
// never stops the rest.
func (o *Orchestrator) fanOut(members []domain.UserID, frame core.Frame, exclude domain.UserID) core.PublishResult {
	res := core.PublishResult{}
	seen := make(map[domain.UserID]struct{}, len(members))
	for _, uid := range members {
		if uid == exclude {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		res.Members++

		for _, c := range o.Registry.Lookup(uid) {
			err := c.TrySend(frame)
			if err == nil {
				res.SendTo++
				continue
			}
			res.Dropped = append(res.Dropped, c)
			o.onSendFailure(c, err)
		}
	}
	return res
}

func (o *Orchestrator) onSendFailure(c core.Conn, err error) {
	logger := log.With().Str("module", "orch").Str("user", string(c.UserID())).Str("conn", string(c.ID())).Logger()
	if !errors.Is(err, core.ErrBackpressure) {
		// Dead socket: forget it now instead of waiting for its read loop.
		logger.Debug().Err(err).Msg("send to closed connection, dropping it")
		o.Drop(c)
		return
	}
	if o.Policy == nil {
		logger.Warn().Msg("slow connection, frame dropped")
		return
	}
	switch o.Policy.OnBackPressure(c) {
	case app.KickConn:
		logger.Warn().Msg("slow connection, kicking")
		o.Drop(c)
	case app.DropFrame, app.NoAction:
		logger.Warn().Msg("slow connection, frame dropped")
	}
}
