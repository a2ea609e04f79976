package http

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/dkeye/Molian/internal/core"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSocketEnv(t *testing.T) (*testEnv, *memberTable) {
	members := &memberTable{rooms: make(map[domain.RoomID][]domain.UserID)}
	return newTestEnv(t, members, nil), members
}

func TestWS_RejectsBeforeUpgrade(t *testing.T) {
	env, _ := newSocketEnv(t)

	for name, url := range map[string]string{
		"no token":  env.wsURL(),
		"bad token": env.wsURL() + "?token=garbage",
	} {
		t.Run(name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(url, nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
	assert.Equal(t, core.RegistryStats{}, env.orch.Stats())
}

func TestWS_BearerHeader(t *testing.T) {
	env, _ := newSocketEnv(t)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+env.token(t, "alice"))

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(), header)
	require.NoError(t, err)
	defer conn.Close()
	expectPong(t, conn)
	assert.Equal(t, core.RegistryStats{Users: 1, Connections: 1}, env.orch.Stats())
}

func TestWS_PingPong(t *testing.T) {
	env, _ := newSocketEnv(t)
	conn := env.dial(t, "alice")
	expectPong(t, conn)
	expectPong(t, conn)
}

func TestWS_BadFramesAreIgnored(t *testing.T) {
	env, _ := newSocketEnv(t)
	conn := env.dial(t, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	writeJSON(t, conn, map[string]any{"type": "dance"})
	writeJSON(t, conn, map[string]any{"type": "messages.subscribe", "chat_room_id": 1})

	expectPong(t, conn)
}

// A and B are members of room 42, C is connected but not a member.
func TestWS_BroadcastReachesMembersOnly(t *testing.T) {
	env, members := newSocketEnv(t)
	members.set("42", "A", "B")

	a := env.dial(t, "A")
	b := env.dial(t, "B")
	c := env.dial(t, "C")

	resp, body := doJSON(t, http.MethodPost, env.internal.URL+"/broadcast/42", "", map[string]any{
		"type":    "messages.new",
		"message": map[string]any{"id": "m1", "content": "hello"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true,"sent_to":2}`, string(body))

	for _, conn := range []*websocket.Conn{a, b} {
		got := readFrame(t, conn)
		assert.Equal(t, "messages.new", got["type"])
		assert.Equal(t, map[string]any{"id": "m1", "content": "hello"}, got["message"])
	}
	expectPong(t, c)

	// C joins and B leaves; the next event follows the store, not the sockets.
	members.set("42", "A", "C")
	resp, _ = doJSON(t, http.MethodPost, env.internal.URL+"/broadcast/42", "", map[string]any{
		"type":    "messages.update",
		"message": map[string]any{"id": "m1", "content": "edited"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "messages.update", readFrame(t, a)["type"])
	assert.Equal(t, "messages.update", readFrame(t, c)["type"])
	expectPong(t, b)
}

func TestWS_MultiDeviceAndClose(t *testing.T) {
	env, members := newSocketEnv(t)
	members.set("7", "A")

	phone := env.dial(t, "A")
	laptop := env.dial(t, "A")
	assert.Equal(t, core.RegistryStats{Users: 1, Connections: 2}, env.orch.Stats())

	require.NoError(t, phone.Close())
	require.Eventually(t, func() bool {
		return env.orch.Stats().Connections == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ := doJSON(t, http.MethodPost, env.internal.URL+"/broadcast/7", "", map[string]any{
		"type":    "messages.delete",
		"message": map[string]any{"message_id": "m1", "room_id": "7"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "messages.delete", readFrame(t, laptop)["type"])
}

func TestWS_TypingRelay(t *testing.T) {
	env, members := newSocketEnv(t)
	members.set("42", "A", "B")

	aPhone := env.dial(t, "A")
	aLaptop := env.dial(t, "A")
	b := env.dial(t, "B")
	c := env.dial(t, "C")

	writeJSON(t, aPhone, map[string]any{"type": "typing", "chat_room_id": 42, "is_typing": true})

	assert.Equal(t, map[string]any{
		"type":         "messages.typing",
		"chat_room_id": "42",
		"user_id":      "A",
		"is_typing":    true,
	}, readFrame(t, b))

	expectPong(t, aPhone)
	expectPong(t, aLaptop)
	expectPong(t, c)
}

func TestWS_TypingFromNonMemberIsDropped(t *testing.T) {
	env, members := newSocketEnv(t)
	members.set("42", "A", "B")

	b := env.dial(t, "B")
	c := env.dial(t, "C")

	writeJSON(t, c, map[string]any{"type": "typing", "chat_room_id": "42", "is_typing": true})
	expectPong(t, c)
	expectPong(t, b)
}

func TestWS_StoreFailureKeepsSockets(t *testing.T) {
	env, members := newSocketEnv(t)
	members.set("42", "A")
	a := env.dial(t, "A")

	members.fail(errors.New("db down"))
	resp, body := doJSON(t, http.MethodPost, env.internal.URL+"/broadcast/42", "", map[string]any{
		"type":    "messages.new",
		"message": map[string]any{"id": "m1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"ok":true`)

	expectPong(t, a)
	assert.Equal(t, core.RegistryStats{Users: 1, Connections: 1}, env.orch.Stats())
}
