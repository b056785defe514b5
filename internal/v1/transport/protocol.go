package transport

import "encoding/json"

// createRoomMsg is the first message a connection may send to stand up
// a fresh room, per SPEC_FULL §6's connection-lifecycle messages.
type createRoomMsg struct {
	Type     string `json:"type"`
	HostName string `json:"hostName"`
}

// joinRoomMsg attaches a connection to an existing room by its invite
// code.
type joinRoomMsg struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
}

// roomCreatedMsg replies to createRoomMsg.
type roomCreatedMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	RoomCode string `json:"roomCode"`
	ClientID string `json:"clientId"`
}

// errorMsg reports a connection-lifecycle failure (e.g. unknown room
// code) that happens before any room-scoped event pipeline exists to
// ack against.
type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

const (
	msgTypeCreateRoom  = "CREATE_ROOM"
	msgTypeJoinRoom    = "JOIN_ROOM"
	msgTypeRoomCreated = "ROOM_CREATED"
	msgTypeError       = "ERROR"
)

// priorityTypes are broadcast/ack message types that jump the normal
// send queue, mirroring the teacher's state/error priority split.
var priorityTypes = map[string]bool{
	"ROOM_STATE":       true,
	"ACK":              true,
	msgTypeError:       true,
	msgTypeRoomCreated: true,
}

func isPriorityMessage(data []byte) bool {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return priorityTypes[probe.Type]
}
