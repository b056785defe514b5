package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/djroom/engine/internal/v1/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() (*Hub, *room.Store) {
	store := room.NewStore(nil, nil, nil, nil, time.Hour, time.Hour, time.Millisecond, 0)
	h := NewHub(store, nil, []string{"http://localhost:3000"}, true)
	store.SetTransport(h)
	return h, store
}

func drainPriority(t *testing.T, c *Client, into any) {
	t.Helper()
	select {
	case data := <-c.prioritySend:
		require.NoError(t, json.Unmarshal(data, into))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for priority message")
	}
}

func TestClient_CreateRoomThenJoin(t *testing.T) {
	hub, _ := newTestHub()

	host := newClient(hub, nil, "conn-host")
	host.handleInbound(mustJSON(t, createRoomMsg{Type: msgTypeCreateRoom, HostName: "Alice"}))

	var created roomCreatedMsg
	drainPriority(t, host, &created)
	assert.Equal(t, msgTypeRoomCreated, created.Type)
	assert.NotEmpty(t, created.RoomCode)

	var state struct {
		Type    string     `json:"type"`
		RoomID  string     `json:"roomId"`
		Payload room.State `json:"payload"`
	}
	drainPriority(t, host, &state)
	assert.Equal(t, "ROOM_STATE", state.Type)
	assert.Equal(t, created.RoomID, state.RoomID)
	assert.Len(t, state.Payload.Members, 1)

	bob := newClient(hub, nil, "conn-bob")
	bob.handleInbound(mustJSON(t, joinRoomMsg{Type: msgTypeJoinRoom, RoomCode: created.RoomCode, Name: "Bob"}))

	var bobState struct {
		Type    string     `json:"type"`
		Payload room.State `json:"payload"`
	}
	drainPriority(t, bob, &bobState)
	assert.Len(t, bobState.Payload.Members, 2)
}

func TestClient_JoinUnknownRoomCodeSendsError(t *testing.T) {
	hub, _ := newTestHub()

	c := newClient(hub, nil, "conn-1")
	c.handleInbound(mustJSON(t, joinRoomMsg{Type: msgTypeJoinRoom, RoomCode: "ZZZZZZ", Name: "Nobody"}))

	var e errorMsg
	drainPriority(t, c, &e)
	assert.Equal(t, msgTypeError, e.Type)
	assert.NotEmpty(t, e.Error)
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	hub, _ := newTestHub()

	host := newClient(hub, nil, "conn-host")
	host.handleInbound(mustJSON(t, createRoomMsg{Type: msgTypeCreateRoom, HostName: "Alice"}))
	var created roomCreatedMsg
	drainPriority(t, host, &created)
	drainPriorityDiscard(t, host) // ROOM_STATE

	bob := newClient(hub, nil, "conn-bob")
	bob.handleInbound(mustJSON(t, joinRoomMsg{Type: msgTypeJoinRoom, RoomCode: created.RoomCode, Name: "Bob"}))
	drainPriorityDiscard(t, bob) // ROOM_STATE after join

	// join broadcasts a fresh ROOM_STATE to the whole room, including host
	drainPriorityDiscard(t, host)

	hub.Broadcast(created.RoomID, []byte(`{"type":"ROOM_STATE"}`), created.ClientID)

	select {
	case <-host.prioritySend:
		t.Fatal("sender should not receive its own excluded broadcast")
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case <-bob.prioritySend:
	case <-time.After(time.Second):
		t.Fatal("non-excluded member should receive the broadcast")
	}
}

func drainPriorityDiscard(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.prioritySend:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message to discard")
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
