package transport

import (
	"context"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestHub_ShutdownLeavesNoGoroutines exercises the readPump/writePump
// pair the way ServeWs starts them, lets both run to completion once the
// connection runs out of frames, then shuts the store down; goleak
// confirms no pump or room goroutine survives.
func TestHub_ShutdownLeavesNoGoroutines(t *testing.T) {
	hub, store := newTestHub()

	conn := &fakeConn{inbound: [][]byte{mustJSON(t, createRoomMsg{Type: msgTypeCreateRoom, HostName: "Alice"})}}
	c := newClient(hub, conn, "conn-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump()
	<-done

	store.Shutdown(context.Background())
}
