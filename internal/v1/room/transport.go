package room

// Transport is the thin boundary the engine requires from whatever
// carries bytes to and from clients. It exposes nothing beyond
// per-connection send and room broadcast, keeping the engine
// transport-agnostic per the component design's Transport Adapter.
type Transport interface {
	// Send delivers data to a single client, best-effort. A closed or
	// unknown clientID is a no-op, not an error.
	Send(clientID string, data []byte)
	// Broadcast delivers data to every member of roomID except those
	// listed in exclude.
	Broadcast(roomID string, data []byte, exclude ...string)
}
