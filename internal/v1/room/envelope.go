package room

import "encoding/json"

// EventType discriminates the payload shape of an inbound or outbound
// message. A central switch in apply.go and pipeline.go is the only
// place that interprets it — no reflection-based dispatch.
type EventType string

const (
	EventCursorMove     EventType = "CURSOR_MOVE"
	EventControlGrab    EventType = "CONTROL_GRAB"
	EventControlRelease EventType = "CONTROL_RELEASE"
	EventMixerSet       EventType = "MIXER_SET"
	EventFXSet          EventType = "FX_SET"
	EventFXToggle       EventType = "FX_TOGGLE"
	EventDeckLoad       EventType = "DECK_LOAD"
	EventDeckPlay       EventType = "DECK_PLAY"
	EventDeckPause      EventType = "DECK_PAUSE"
	EventDeckCue        EventType = "DECK_CUE"
	EventDeckSeek       EventType = "DECK_SEEK"
	EventDeckTempoSet   EventType = "DECK_TEMPO_SET"
	EventQueueAdd       EventType = "QUEUE_ADD"
	EventQueueRemove    EventType = "QUEUE_REMOVE"
	EventQueueReorder   EventType = "QUEUE_REORDER"
	EventQueueEdit      EventType = "QUEUE_EDIT"
	EventTimePing       EventType = "TIME_PING"

	// Server to client only.
	EventAck           EventType = "ACK"
	EventCursorUpdate  EventType = "CURSOR_UPDATE"
	EventBeaconTick    EventType = "BEACON_TICK"
	EventTimePong      EventType = "TIME_PONG"
)

// InboundEnvelope is the shape every client mutation arrives in. Payload
// is left raw so the pipeline can pick a concrete struct once Type is
// known. ClientEventID is an optional client-minted idempotency key;
// when a client omits it the server mints one on acceptance and that
// becomes the eventId echoed in the ack and broadcast.
type InboundEnvelope struct {
	Type          EventType       `json:"type"`
	RoomID        string          `json:"roomId"`
	ClientID      string          `json:"clientId"`
	ClientSeq     uint64          `json:"clientSeq"`
	ClientEventID string          `json:"eventId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Ack is sent to the sender only.
type Ack struct {
	Type      EventType `json:"type"`
	ClientSeq uint64    `json:"clientSeq"`
	EventID   string    `json:"eventId"`
	Accepted  bool      `json:"accepted"`
	Error     string    `json:"error,omitempty"`
}

// MutationBroadcast goes to the whole room, including the sender, so
// clients can reconcile optimistic state against the authoritative
// version.
type MutationBroadcast struct {
	Type      EventType       `json:"type"`
	RoomID    string          `json:"roomId"`
	ClientID  string          `json:"clientId"`
	ClientSeq uint64          `json:"clientSeq"`
	EventID   string          `json:"eventId"`
	ServerTs  int64           `json:"serverTs"`
	Version   uint64          `json:"version"`
	Payload   json.RawMessage `json:"payload"`
}

// CursorUpdate never bumps version and never reaches the sender.
type CursorUpdate struct {
	Type     EventType `json:"type"`
	RoomID   string    `json:"roomId"`
	ClientID string    `json:"clientId"`
	Cursor   Cursor    `json:"cursor"`
}

// BeaconDeckPayload is one deck's slice of a beacon tick.
type BeaconDeckPayload struct {
	DeckID       DeckID    `json:"deckId"`
	EpochID      string    `json:"epochId"`
	EpochSeq     uint64    `json:"epochSeq"`
	ServerTs     int64     `json:"serverTs"`
	PlayheadSec  float64   `json:"playheadSec"`
	PlaybackRate float64   `json:"playbackRate"`
	PlayState    PlayState `json:"playState"`
	DetectedBpm  *float64  `json:"detectedBpm,omitempty"`
}

// BeaconTick is the per-room 250ms authoritative tick.
type BeaconTick struct {
	Type   EventType `json:"type"`
	RoomID string    `json:"roomId"`
	Payload struct {
		ServerTs int64             `json:"serverTs"`
		Version  uint64            `json:"version"`
		DeckA    BeaconDeckPayload `json:"deckA"`
		DeckB    BeaconDeckPayload `json:"deckB"`
	} `json:"payload"`
}

// TimePong answers a TIME_PING.
type TimePong struct {
	Type     EventType `json:"type"`
	T0       int64     `json:"t0"`
	ServerTs int64     `json:"serverTs"`
}

// --- Client->server payload shapes, one struct per EventType. ---

type CursorMovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ControlGrabPayload struct {
	ControlID string `json:"controlId"`
}

type ControlReleasePayload struct {
	ControlID string `json:"controlId"`
}

type MixerSetPayload struct {
	ControlID string  `json:"controlId"`
	Value     float64 `json:"value"`
}

type FXSetPayload struct {
	Param string  `json:"param"`
	Value float64 `json:"value"`
}

type FXTogglePayload struct {
	Enabled bool `json:"enabled"`
}

type DeckLoadPayload struct {
	DeckID      DeckID  `json:"deckId"`
	TrackID     string  `json:"trackId"`
	QueueItemID string  `json:"queueItemId"`
}

type DeckPlayPayload struct {
	DeckID DeckID `json:"deckId"`
}

type DeckPausePayload struct {
	DeckID DeckID `json:"deckId"`
}

type DeckCuePayload struct {
	DeckID      DeckID   `json:"deckId"`
	CuePointSec *float64 `json:"cuePointSec,omitempty"`
}

type DeckSeekPayload struct {
	DeckID      DeckID  `json:"deckId"`
	PositionSec float64 `json:"positionSec"`
}

type DeckTempoSetPayload struct {
	DeckID       DeckID  `json:"deckId"`
	PlaybackRate float64 `json:"playbackRate"`
}

type QueueAddPayload struct {
	TrackID     string  `json:"trackId"`
	Title       string  `json:"title"`
	DurationSec float64 `json:"durationSec"`
	InsertAt    *int    `json:"insertAt,omitempty"`
}

// QueueAddBroadcastPayload mirrors QueueAddPayload but also carries the
// server-minted queueItemId, per §6.
type QueueAddBroadcastPayload struct {
	TrackID     string  `json:"trackId"`
	Title       string  `json:"title"`
	DurationSec float64 `json:"durationSec"`
	QueueItemID string  `json:"queueItemId"`
}

type QueueRemovePayload struct {
	QueueItemID string `json:"queueItemId"`
}

type QueueReorderPayload struct {
	QueueItemID string `json:"queueItemId"`
	NewIndex    int    `json:"newIndex"`
}

type QueueEditUpdates struct {
	Title *string `json:"title,omitempty"`
}

type QueueEditPayload struct {
	QueueItemID string           `json:"queueItemId"`
	Updates     QueueEditUpdates `json:"updates"`
}

type TimePingPayload struct {
	T0 int64 `json:"t0"`
}
