package room

import (
	"encoding/json"
	"time"
)

// handleTimePing answers TIME_PING with the server's current wall
// clock and records the client's measured one-way latency. Malformed
// pings are dropped silently per §4.8.
func (r *Room) handleTimePing(clientID string, env InboundEnvelope) {
	var p TimePingPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.T0 <= 0 {
		return
	}

	now := time.Now()
	latencyMs := (now.UnixMilli() - p.T0) / 2
	if latencyMs < 0 {
		latencyMs = 0
	}

	r.mu.Lock()
	if m := r.state.MemberByClientID(clientID); m != nil {
		m.LatencyMs = latencyMs
	}
	transport := r.transport
	r.mu.Unlock()

	if transport == nil {
		return
	}
	data, err := json.Marshal(TimePong{Type: EventTimePong, T0: p.T0, ServerTs: now.UnixMilli()})
	if err != nil {
		return
	}
	transport.Send(clientID, data)
}
