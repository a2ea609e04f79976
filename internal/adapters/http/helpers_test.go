package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Molian/internal/adapters/auth"
	"github.com/dkeye/Molian/internal/adapters/signal"
	"github.com/dkeye/Molian/internal/app"
	"github.com/dkeye/Molian/internal/app/messager"
	"github.com/dkeye/Molian/internal/app/orch"
	"github.com/dkeye/Molian/internal/config"
	"github.com/dkeye/Molian/internal/core"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type memberTable struct {
	mu    sync.Mutex
	rooms map[domain.RoomID][]domain.UserID
	err   error
}

func (m *memberTable) set(room domain.RoomID, users ...domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room] = users
}

func (m *memberTable) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *memberTable) RoomMembers(_ context.Context, room domain.RoomID) ([]domain.UserID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.UserID(nil), m.rooms[room]...), nil
}

type testEnv struct {
	orch     *orch.Orchestrator
	members  core.MembershipStore
	verifier *auth.JWTVerifier
	public   *httptest.Server
	internal *httptest.Server
}

func testConfig() *config.Config {
	return &config.Config{Mode: "test", Secret: "test-secret", TokenTTL: time.Hour}
}

// newTestEnv wires the public and internal routers over members. svc may be
// nil when a test only needs the socket side.
func newTestEnv(t *testing.T, members core.MembershipStore, svc func(*orch.Orchestrator) *messager.Service) *testEnv {
	t.Helper()
	cfg := testConfig()
	verifier := auth.NewJWTVerifier(cfg.Secret, cfg.TokenTTL)
	o := orch.New(app.NewRegistry(), members, app.DropPolicy{})

	opts := signal.DefaultOptions()
	opts.TypingLimit = 100
	ctl := signal.NewSignalWSController(o, verifier, opts)

	var service *messager.Service
	if svc != nil {
		service = svc(o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	env := &testEnv{
		orch:     o,
		members:  members,
		verifier: verifier,
		public:   httptest.NewServer(SetupRouter(ctx, cfg, ctl, service, verifier)),
		internal: httptest.NewServer(SetupInternalRouter(cfg.Mode, o)),
	}
	t.Cleanup(func() {
		cancel()
		o.Shutdown()
		env.public.Close()
		env.internal.Close()
	})
	return env
}

func (e *testEnv) token(t *testing.T, uid domain.UserID) string {
	t.Helper()
	tok, err := e.verifier.Issue(uid)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.public.URL, "http") + "/ws"
}

// dial connects as uid and waits for a pong so the socket is registered
// before the test goes on.
func (e *testEnv) dial(t *testing.T, uid domain.UserID) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL()+"?token="+e.token(t, uid), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	expectPong(t, conn)
	return conn
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

// expectPong sends a ping and requires the very next frame to be the pong,
// which also proves nothing else was queued for conn before it.
func expectPong(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeJSON(t, conn, map[string]any{"type": "ping"})
	require.Equal(t, "pong", readFrame(t, conn)["type"])
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *strings.Reader
	if body == nil {
		reader = strings.NewReader("")
	} else if s, ok := body.(string); ok {
		reader = strings.NewReader(s)
	} else {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf strings.Builder
	_, err = io.Copy(&buf, resp.Body)
	require.NoError(t, err)
	return resp, []byte(buf.String())
}
