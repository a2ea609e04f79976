package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternal_BroadcastValidation(t *testing.T) {
	env, _ := newSocketEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "unknown type", body: map[string]any{"type": "messages.pin", "message": map[string]any{}}},
		{name: "typing is not an event", body: map[string]any{"type": "messages.typing", "message": map[string]any{}}},
		{name: "missing message", body: map[string]any{"type": "messages.new"}},
		{name: "null message", body: map[string]any{"type": "messages.new", "message": nil}},
		{name: "invalid json", body: `{"type":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodPost, env.internal.URL+"/broadcast/42", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, string(body), `"error"`)
		})
	}
}

func TestInternal_BroadcastToEmptyRoom(t *testing.T) {
	env, _ := newSocketEnv(t)
	resp, body := doJSON(t, http.MethodPost, env.internal.URL+"/broadcast/nobody-here", "", map[string]any{
		"type":    "messages.reaction.added",
		"message": map[string]any{"message_id": "m1", "emoji": "👍"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true,"sent_to":0}`, string(body))
}

func TestInternal_Stats(t *testing.T) {
	env, _ := newSocketEnv(t)
	env.dial(t, "alice")
	env.dial(t, "alice")
	env.dial(t, "bob")

	resp, body := doJSON(t, http.MethodGet, env.internal.URL+"/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"users":2,"connections":3}`, string(body))
}

func TestPublic_Health(t *testing.T) {
	env, _ := newSocketEnv(t)
	resp, body := doJSON(t, http.MethodGet, env.public.URL+"/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}
