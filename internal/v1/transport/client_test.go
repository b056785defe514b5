package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a wsConnection stand-in that feeds a fixed sequence of
// inbound frames to readPump and records what writePump sends out.
type fakeConn struct {
	mu       sync.Mutex
	inbound  [][]byte
	readIdx  int
	written  [][]byte
	closed   bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readIdx >= len(f.inbound) {
		return 0, nil, errors.New("fakeConn: no more inbound frames")
	}
	data := f.inbound[f.readIdx]
	f.readIdx++
	return websocket.TextMessage, data, nil
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.written = append(f.written, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

func TestClient_ReadPumpCreatesRoomAndWritesBack(t *testing.T) {
	hub, _ := newTestHub()
	conn := &fakeConn{inbound: [][]byte{mustJSON(t, createRoomMsg{Type: msgTypeCreateRoom, HostName: "Alice"})}}
	c := newClient(hub, conn, "conn-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	c.readPump()
	wg.Wait()

	written := conn.snapshot()
	require.GreaterOrEqual(t, len(written), 2)

	var created roomCreatedMsg
	require.NoError(t, json.Unmarshal(written[0], &created))
	assert.Equal(t, msgTypeRoomCreated, created.Type)

	_, clientID, attached := c.attached()
	assert.True(t, attached)
	assert.Equal(t, created.ClientID, clientID)
}

func TestClient_EnqueueDropsOnFullBuffer(t *testing.T) {
	c := newClient(nil, nil, "conn-1")
	// send (non-priority) channel has capacity 256; fill it then confirm
	// one more enqueue does not block.
	for i := 0; i < 256; i++ {
		c.enqueue([]byte(`{"type":"QUEUE_ADD"}`))
	}

	done := make(chan struct{})
	go func() {
		c.enqueue([]byte(`{"type":"QUEUE_ADD"}`))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full buffer instead of dropping")
	}
}

func TestClient_EnqueueNoopAfterClosed(t *testing.T) {
	c := newClient(nil, nil, "conn-1")
	c.markClosed()
	// must not panic sending on a closed channel
	c.enqueue([]byte(`{"type":"ACK"}`))
}
