package signal

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Molian/internal/adapters/auth"
	"github.com/dkeye/Molian/internal/app/orch"
	"github.com/dkeye/Molian/internal/core"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	AllowedOrigins []string
	TypingLimit    int
	TypingInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:      32768,
		PingPeriod:     54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      5 * time.Second,
		SendBuffer:     32,
		TypingLimit:    10,
		TypingInterval: time.Second,
	}
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Verifier core.Verifier
	Typing   *RoomRateLimiter

	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, v core.Verifier, opts Options) *SignalWSController {
	ctl := &SignalWSController{
		Orch:     o,
		Verifier: v,
		Typing:   NewRoomRateLimiter(opts.TypingLimit, opts.TypingInterval),
		opts:     opts,
	}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	return ctl
}

func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	if len(ctl.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(ctl.opts.AllowedOrigins, origin)
}

// WsSignalConn is one accepted socket. The user tag is fixed at accept time.
type WsSignalConn struct {
	id   core.ConnID
	user domain.UserID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.Conn = (*WsSignalConn)(nil)

func newWsSignalConn(user domain.UserID, ws *websocket.Conn, buffer int) *WsSignalConn {
	if buffer <= 0 {
		buffer = 1
	}
	return &WsSignalConn{
		id:   core.ConnID(uuid.NewString()),
		user: user,
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) ID() core.ConnID       { return c.id }
func (c *WsSignalConn) UserID() domain.UserID { return c.user }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal authenticates first and upgrades only on success, so a
// rejected request never opens a socket.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	uid, err := ctl.Verifier.Verify(auth.TokenFromRequest(c.Request))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("ip", c.ClientIP()).Msg("ws upgrade rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("ws upgrade")
		return
	}
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}

	conn := newWsSignalConn(uid, ws, ctl.opts.SendBuffer)
	ctl.Orch.Admit(conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}
