package room

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestRoom_ShutdownStopsBeaconGoroutine confirms a room's beacon ticker
// goroutine exits on Shutdown rather than leaking past the room's life.
func TestRoom_ShutdownStopsBeaconGoroutine(t *testing.T) {
	transport := &fakeTransport{sent: make(map[string][][]byte)}
	r := NewRoom("room-1", "ABC234", "Alice", "host", transport, nil, &allowAllLimiter{allow: true}, nil, 0, nil, time.Millisecond, time.Hour, time.Millisecond)

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

// TestStore_ScheduleGCCancelledLeavesNoTimerGoroutine confirms a
// cancelled grace-period timer doesn't leave its AfterFunc running.
func TestStore_ScheduleGCCancelledLeavesNoTimerGoroutine(t *testing.T) {
	store := NewStore(nil, nil, &allowAllLimiter{allow: true}, nil, time.Hour, 5*time.Millisecond, time.Millisecond, 0)

	if _, _, err := store.CreateRoom("Alice", "conn-1"); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	store.Leave("conn-1")

	store.Shutdown(context.Background())
}
