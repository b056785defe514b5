package room

import (
	"encoding/json"
	"log/slog"
	"time"
)

// handleCursorMove is the high-frequency, lossy broadcast path: no
// ack, no idempotency, no version bump, server-throttled, and never
// echoed back to the sender (an explicitly decided open question).
func (r *Room) handleCursorMove(clientID string, env InboundEnvelope) {
	var p CursorMovePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	if err := validateCursor(p); err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.MemberByClientID(clientID) == nil {
		return
	}

	now := time.Now()
	if last, ok := r.cursorLastSent[clientID]; ok && now.Sub(last) < r.cursorThrottle {
		return
	}
	r.cursorLastSent[clientID] = now

	ev := &event{Type: EventCursorMove, ClientID: clientID, ServerTs: now, Cursor: &p}
	next, _, err := apply(r.state, ev)
	if err != nil {
		slog.Error("room: cursor apply failed", "room", r.state.RoomID, "error", err)
		return
	}
	r.state = next

	if r.transport == nil {
		return
	}
	m := r.state.MemberByClientID(clientID)
	data, err := json.Marshal(CursorUpdate{
		Type:     EventCursorUpdate,
		RoomID:   r.state.RoomID,
		ClientID: clientID,
		Cursor:   *m.Cursor,
	})
	if err != nil {
		return
	}
	r.transport.Broadcast(r.state.RoomID, data, clientID)
}
