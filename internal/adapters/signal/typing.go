package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Molian/internal/app/orch"
	"github.com/dkeye/Molian/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleTyping runs on the connection's read loop, so typing frames from one
// socket are relayed in the order they arrived.
func (ctl *SignalWSController) handleTyping(ctx context.Context, c *WsSignalConn, f protocol.Typing) {
	room := f.RoomID.RoomID()
	if ctl.Typing != nil && !ctl.Typing.Allow(c.user, room) {
		log.Debug().Str("module", "signal").Str("user", string(c.user)).Str("room", string(room)).Msg("typing throttled")
		return
	}
	if _, err := ctl.Orch.RelayTyping(ctx, c, room, f.IsTyping); err != nil {
		if errors.Is(err, orch.ErrNotMember) {
			log.Debug().Str("module", "signal").Str("user", string(c.user)).Str("room", string(room)).Msg("typing from non-member ignored")
		}
	}
}
