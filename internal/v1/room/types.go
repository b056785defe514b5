package room

import "time"

// DeckID identifies one of the two playback decks.
type DeckID string

const (
	DeckA DeckID = "A"
	DeckB DeckID = "B"
)

// PlayState is the lifecycle state of a deck.
type PlayState string

const (
	PlayStateStopped PlayState = "stopped"
	PlayStateCued    PlayState = "cued"
	PlayStatePaused  PlayState = "paused"
	PlayStatePlaying PlayState = "playing"
)

// QueueItemStatus tracks where a queued track sits relative to the decks.
type QueueItemStatus string

const (
	QueueItemQueued    QueueItemStatus = "queued"
	QueueItemLoadedA   QueueItemStatus = "loaded_A"
	QueueItemLoadedB   QueueItemStatus = "loaded_B"
	QueueItemPlayingA  QueueItemStatus = "playing_A"
	QueueItemPlayingB  QueueItemStatus = "playing_B"
	QueueItemPlayed    QueueItemStatus = "played"
)

// FXType names the single active mixer effect.
type FXType string

const (
	FXNone   FXType = "none"
	FXEcho   FXType = "echo"
	FXReverb FXType = "reverb"
	FXFilter FXType = "filter"
)

// hostSentinel is the hostId left behind when the host leaves and no
// member remains to migrate to.
const hostSentinel = ""

// Cursor is a member's last-known pointer position.
type Cursor struct {
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Member is one participant in a room.
type Member struct {
	ClientID  string    `json:"clientId"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	JoinedAt  time.Time `json:"joinedAt"`
	IsHost    bool      `json:"isHost"`
	Cursor    *Cursor   `json:"cursor,omitempty"`
	LatencyMs int64     `json:"latencyMs"`
}

// QueueItem is a track sitting in the shared queue.
type QueueItem struct {
	ID          string          `json:"id"`
	TrackID     string          `json:"trackId"`
	Title       string          `json:"title"`
	DurationSec float64         `json:"durationSec"`
	AddedBy     string          `json:"addedBy"`
	AddedAt     time.Time       `json:"addedAt"`
	Status      QueueItemStatus `json:"status"`
}

// DeckState is the playback state of one deck, including the epoch
// fields clients use to interpolate the authoritative playhead.
type DeckState struct {
	DeckID            DeckID    `json:"deckId"`
	LoadedTrackID     string    `json:"loadedTrackId,omitempty"`
	LoadedQueueItemID string    `json:"loadedQueueItemId,omitempty"`
	DurationSec       float64   `json:"durationSec,omitempty"`
	PlayState         PlayState `json:"playState"`
	PlayheadSec       float64   `json:"playheadSec"`
	CuePointSec       *float64  `json:"cuePointSec,omitempty"`
	HotCuePointSec    *float64  `json:"hotCuePointSec,omitempty"`
	PlaybackRate      float64   `json:"playbackRate"`
	DetectedBpm       *float64  `json:"detectedBpm,omitempty"`

	EpochID               string  `json:"epochId"`
	EpochSeq              uint64  `json:"epochSeq"`
	EpochStartTimeMs      int64   `json:"epochStartTimeMs"`
	EpochStartPlayheadSec float64 `json:"epochStartPlayheadSec"`
}

// Channel is one mixer input strip.
type Channel struct {
	Fader  float64 `json:"fader"`
	Gain   float64 `json:"gain"`
	EQLow  float64 `json:"eqLow"`
	EQMid  float64 `json:"eqMid"`
	EQHigh float64 `json:"eqHigh"`
	Filter float64 `json:"filter"`
}

// FXState is the single shared effect slot.
type FXState struct {
	Type    FXType  `json:"type"`
	Enabled bool    `json:"enabled"`
	WetDry  float64 `json:"wetDry"`
	Param   float64 `json:"param"`
}

// MixerState is the shared mixer, sitting between the two decks.
type MixerState struct {
	Crossfader   float64 `json:"crossfader"`
	MasterVolume float64 `json:"masterVolume"`
	ChannelA     Channel `json:"channelA"`
	ChannelB     Channel `json:"channelB"`
	FX           FXState `json:"fx"`
}

// ControlOwnership is a short lease on exclusive edit rights to a
// named control, cleared on release or disconnect; once expired it
// stays recorded but no longer blocks other clients.
type ControlOwnership struct {
	ClientID    string    `json:"clientId"`
	AcquiredAt  time.Time `json:"acquiredAt"`
	LastMovedAt time.Time `json:"lastMovedAt"`
}

// State is the root aggregate for one room. Every mutating operation
// runs under the owning Room's lock; apply() never mutates a State it
// did not itself construct fresh.
type State struct {
	RoomID    string    `json:"roomId"`
	RoomCode  string    `json:"roomCode"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	HostID    string    `json:"hostId"`

	Members []Member  `json:"members"`
	Queue   []QueueItem `json:"queue"`
	DeckA   DeckState `json:"deckA"`
	DeckB   DeckState `json:"deckB"`
	Mixer   MixerState `json:"mixer"`

	ControlOwners map[string]ControlOwnership `json:"controlOwners"`
}

// Clone returns an independent deep copy so that callers (snapshot,
// beacon, broadcast) never observe a struct apply() is still mutating.
func (s *State) Clone() *State {
	out := *s

	out.Members = make([]Member, len(s.Members))
	for i, m := range s.Members {
		mc := m
		if m.Cursor != nil {
			cc := *m.Cursor
			mc.Cursor = &cc
		}
		out.Members[i] = mc
	}

	out.Queue = make([]QueueItem, len(s.Queue))
	copy(out.Queue, s.Queue)

	out.DeckA = cloneDeck(s.DeckA)
	out.DeckB = cloneDeck(s.DeckB)

	out.ControlOwners = make(map[string]ControlOwnership, len(s.ControlOwners))
	for k, v := range s.ControlOwners {
		out.ControlOwners[k] = v
	}

	return &out
}

func cloneDeck(d DeckState) DeckState {
	out := d
	if d.CuePointSec != nil {
		v := *d.CuePointSec
		out.CuePointSec = &v
	}
	if d.HotCuePointSec != nil {
		v := *d.HotCuePointSec
		out.HotCuePointSec = &v
	}
	if d.DetectedBpm != nil {
		v := *d.DetectedBpm
		out.DetectedBpm = &v
	}
	return out
}

func newDeck(id DeckID) DeckState {
	return DeckState{
		DeckID:       id,
		PlayState:    PlayStateStopped,
		PlaybackRate: 1.0,
	}
}

func defaultMixer() MixerState {
	return MixerState{
		Crossfader:   0.5,
		MasterVolume: 1.0,
		ChannelA:     Channel{Fader: 1.0, Gain: 0, EQLow: 0, EQMid: 0, EQHigh: 0, Filter: 0.5},
		ChannelB:     Channel{Fader: 1.0, Gain: 0, EQLow: 0, EQMid: 0, EQHigh: 0, Filter: 0.5},
		FX:           FXState{Type: FXNone, Enabled: false, WetDry: 0, Param: 0.5},
	}
}

// MemberByClientID finds a member by id, or nil.
func (s *State) MemberByClientID(clientID string) *Member {
	for i := range s.Members {
		if s.Members[i].ClientID == clientID {
			return &s.Members[i]
		}
	}
	return nil
}

func (s *State) queueIndex(queueItemID string) int {
	for i := range s.Queue {
		if s.Queue[i].ID == queueItemID {
			return i
		}
	}
	return -1
}

func (s *State) deck(id DeckID) *DeckState {
	switch id {
	case DeckA:
		return &s.DeckA
	case DeckB:
		return &s.DeckB
	default:
		return nil
	}
}
