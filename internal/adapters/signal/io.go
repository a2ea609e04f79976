package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Molian/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var tick <-chan time.Time
	if ctl.opts.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	// A failed write tears the socket down; readPump then unregisters it.
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		case <-tick:
			deadline := time.Now().Add(ctl.opts.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, c *WsSignalConn) {
	defer func() {
		cancel()
		ctl.Orch.Drop(c)
		log.Info().Str("module", "signal").Str("user", string(c.user)).Str("conn", string(c.id)).Msg("readPump closing")
	}()

	ctl.extendReadDeadline(c)
	c.conn.SetPongHandler(func(string) error {
		ctl.extendReadDeadline(c)
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump read error")
			}
			return
		}
		ctl.extendReadDeadline(c)
		ctl.handleSignal(ctx, c, data)
	}
}

func (ctl *SignalWSController) extendReadDeadline(c *WsSignalConn) {
	if ctl.opts.PongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	}
}

// handleSignal never answers a bad frame; the connection simply stays open.
func (ctl *SignalWSController) handleSignal(ctx context.Context, c *WsSignalConn, data []byte) {
	frame, err := protocol.Decode(data)
	if err != nil {
		lvl := log.Debug()
		if errors.Is(err, protocol.ErrMalformedFrame) {
			lvl = log.Warn()
		}
		lvl.Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("frame ignored")
		return
	}

	switch f := frame.(type) {
	case protocol.Ping:
		ctl.handlePing(c)
	case protocol.Typing:
		ctl.handleTyping(ctx, c, f)
	case protocol.Subscribe, protocol.Unsubscribe:
		// Membership in the store decides delivery; nothing to track here.
	default:
		log.Warn().Str("module", "signal").Str("type", string(frame.Type())).Msg("unhandled frame")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("sendJSON dropped")
	}
}
