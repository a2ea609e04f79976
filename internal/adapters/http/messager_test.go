package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/dkeye/Molian/internal/adapters/store/gormstore"
	"github.com/dkeye/Molian/internal/app/messager"
	"github.com/dkeye/Molian/internal/app/orch"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMessagerEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := gormstore.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return newTestEnv(t, repo, func(o *orch.Orchestrator) *messager.Service {
		return messager.NewService(repo, o)
	})
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

type roomBody struct {
	Room domain.Room `json:"room"`
}

type roomsBody struct {
	Rooms []domain.Room `json:"rooms"`
}

type messageBody struct {
	Message domain.Message `json:"message"`
}

type messagesBody struct {
	Messages []domain.Message `json:"messages"`
}

func TestMessager_RequiresToken(t *testing.T) {
	env := newMessagerEnv(t)
	resp, body := doJSON(t, http.MethodGet, env.public.URL+"/messager/chat", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "missing token")

	resp, _ = doJSON(t, http.MethodGet, env.public.URL+"/messager/chat", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMessager_RoomFlow(t *testing.T) {
	env := newMessagerEnv(t)
	alice := env.token(t, "alice")
	mallory := env.token(t, "mallory")
	base := env.public.URL + "/messager/chat"

	resp, body := doJSON(t, http.MethodPost, base, alice, map[string]any{
		"name":       "team",
		"type":       "group",
		"member_ids": []string{"bob"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	room := decode[roomBody](t, body).Room
	assert.Equal(t, 2, room.MemberCount)

	resp, body = doJSON(t, http.MethodGet, base, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[roomsBody](t, body).Rooms, 1)

	resp, body = doJSON(t, http.MethodGet, base+"/"+string(room.ID), env.token(t, "bob"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, room.ID, decode[roomBody](t, body).Room.ID)

	resp, _ = doJSON(t, http.MethodGet, base+"/"+string(room.ID), mallory, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// membership is checked before existence
	resp, _ = doJSON(t, http.MethodGet, base+"/missing", alice, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, base, alice, map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessager_DirectRoom(t *testing.T) {
	env := newMessagerEnv(t)
	base := env.public.URL + "/messager/chat/direct/"

	resp, body := doJSON(t, http.MethodPost, base+"bob", env.token(t, "alice"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	first := decode[roomBody](t, body).Room

	resp, body = doJSON(t, http.MethodPost, base+"alice", env.token(t, "bob"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first.ID, decode[roomBody](t, body).Room.ID)

	resp, _ = doJSON(t, http.MethodPost, base+"alice", env.token(t, "alice"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// A message posted over REST is stored and then pushed to every member socket.
func TestMessager_SendReachesSockets(t *testing.T) {
	env := newMessagerEnv(t)
	alice := env.token(t, "alice")
	base := env.public.URL + "/messager/chat"

	resp, body := doJSON(t, http.MethodPost, base, alice, map[string]any{
		"name": "team", "type": "group", "member_ids": []string{"bob"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	room := decode[roomBody](t, body).Room
	messages := base + "/" + string(room.ID) + "/messages"

	bobSocket := env.dial(t, "bob")
	aliceSocket := env.dial(t, "alice")
	carolSocket := env.dial(t, "carol")

	resp, body = doJSON(t, http.MethodPost, messages, alice, map[string]any{
		"content":     "hello",
		"nonce":       "n-1",
		"attachments": []map[string]any{{"url": "https://example.com/a.png"}},
		"meta":        map[string]any{"client": "test"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	msg := decode[messageBody](t, body).Message
	assert.JSONEq(t, `[{"url":"https://example.com/a.png"}]`, string(msg.Attachments))

	got := readFrame(t, bobSocket)
	assert.Equal(t, "messages.new", got["type"])
	assert.Equal(t, string(msg.ID), got["message"].(map[string]any)["id"])
	assert.Equal(t, "messages.new", readFrame(t, aliceSocket)["type"])
	expectPong(t, carolSocket)

	// Retrying with the same nonce returns the stored row and sends nothing.
	resp, body = doJSON(t, http.MethodPost, messages, alice, map[string]any{"content": "hello", "nonce": "n-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, msg.ID, decode[messageBody](t, body).Message.ID)
	expectPong(t, bobSocket)

	resp, body = doJSON(t, http.MethodGet, messages+"?take=500&offset=-3", env.token(t, "bob"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[messagesBody](t, body).Messages, 1)
}

func TestMessager_EditDeleteReact(t *testing.T) {
	env := newMessagerEnv(t)
	alice := env.token(t, "alice")
	bob := env.token(t, "bob")
	base := env.public.URL + "/messager/chat"

	_, body := doJSON(t, http.MethodPost, base, alice, map[string]any{
		"name": "team", "type": "group", "member_ids": []string{"bob"},
	})
	room := decode[roomBody](t, body).Room
	messages := base + "/" + string(room.ID) + "/messages"

	_, body = doJSON(t, http.MethodPost, messages, alice, map[string]any{"content": "typo"})
	msg := decode[messageBody](t, body).Message
	one := messages + "/" + string(msg.ID)

	bobSocket := env.dial(t, "bob")

	resp, _ := doJSON(t, http.MethodPatch, one, bob, map[string]any{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPatch, one, alice, map[string]any{"content": "fixed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fixed", decode[messageBody](t, body).Message.Content)
	assert.Equal(t, "messages.update", readFrame(t, bobSocket)["type"])

	resp, body = doJSON(t, http.MethodPut, one+"/reactions/%F0%9F%91%8D", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"ok":true}`, string(body))
	reaction := readFrame(t, bobSocket)
	assert.Equal(t, "messages.reaction.added", reaction["type"])
	assert.Equal(t, "👍", reaction["message"].(map[string]any)["emoji"])

	resp, body = doJSON(t, http.MethodGet, messages, bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[messagesBody](t, body).Messages
	require.Len(t, list, 1)
	assert.Equal(t, []domain.UserID{"bob"}, list[0].Reactions["👍"])

	resp, body = doJSON(t, http.MethodDelete, one+"/reactions/%F0%9F%91%8D", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, "messages.reaction.removed", readFrame(t, bobSocket)["type"])

	resp, _ = doJSON(t, http.MethodDelete, one, bob, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = doJSON(t, http.MethodDelete, one, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"deleted":true}`, string(body))
	deleted := readFrame(t, bobSocket)
	assert.Equal(t, "messages.delete", deleted["type"])
	assert.Equal(t, map[string]any{"message_id": string(msg.ID), "room_id": string(room.ID)}, deleted["message"])

	resp, _ = doJSON(t, http.MethodPatch, messages+"/missing", alice, map[string]any{"content": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
