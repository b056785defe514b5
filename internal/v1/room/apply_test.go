package room

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshState() *State {
	now := time.Now()
	return &State{
		RoomID:    "room-1",
		RoomCode:  "ABC234",
		Version:   0,
		CreatedAt: now,
		HostID:    "host",
		Members: []Member{
			{ClientID: "host", Name: "Alice", JoinedAt: now, IsHost: true},
			{ClientID: "bob", Name: "Bob", JoinedAt: now.Add(time.Second)},
		},
		DeckA:         newDeck(DeckA),
		DeckB:         newDeck(DeckB),
		Mixer:         defaultMixer(),
		ControlOwners: make(map[string]ControlOwnership),
	}
}

func TestApply_QueueAddThenReorder(t *testing.T) {
	s := freshState()

	s1, _, err := apply(s, &event{Type: EventQueueAdd, ClientID: "host", ServerTs: time.Now(),
		QueueAdd: &QueueAddPayload{TrackID: "t1", Title: "A", DurationSec: 120}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), s1.Version)
	q1 := s1.Queue[0].ID

	s2, _, err := apply(s1, &event{Type: EventQueueAdd, ClientID: "host", ServerTs: time.Now(),
		QueueAdd: &QueueAddPayload{TrackID: "t2", Title: "B", DurationSec: 90}})
	require.NoError(t, err)
	q2 := s2.Queue[1].ID
	assert.Equal(t, uint64(2), s2.Version)

	zero := 0
	s3, _, err := apply(s2, &event{Type: EventQueueReorder, ClientID: "host", ServerTs: time.Now(),
		QueueReo: &QueueReorderPayload{QueueItemID: q2, NewIndex: zero}})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s3.Version)
	assert.Equal(t, []string{q2, q1}, []string{s3.Queue[0].ID, s3.Queue[1].ID})

	// original states are untouched (no aliasing)
	assert.Equal(t, uint64(2), s2.Version)
}

func TestApply_CursorMoveDoesNotBumpVersion(t *testing.T) {
	s := freshState()
	next, payload, err := apply(s, &event{Type: EventCursorMove, ClientID: "host", ServerTs: time.Now(),
		Cursor: &CursorMovePayload{X: 0.5, Y: 0.25}})
	require.NoError(t, err)
	assert.Nil(t, payload)
	assert.Equal(t, s.Version, next.Version)
	assert.Equal(t, 0.5, next.MemberByClientID("host").Cursor.X)
}

func TestApply_DeckLoadPlayPause_PlayheadContinuity(t *testing.T) {
	s := freshState()
	s.Queue = []QueueItem{{ID: "q1", TrackID: "t1", DurationSec: 120, Status: QueueItemQueued}}

	t0 := time.Now()
	s1, _, err := apply(s, &event{Type: EventDeckLoad, ClientID: "host", ServerTs: t0,
		DeckLoad: &DeckLoadPayload{DeckID: DeckA, TrackID: "t1", QueueItemID: "q1"}})
	require.NoError(t, err)
	assert.Equal(t, QueueItemLoadedA, s1.Queue[0].Status)

	s2, _, err := apply(s1, &event{Type: EventDeckPlay, ClientID: "host", ServerTs: t0, DeckPlay: &DeckPlayPayload{DeckID: DeckA}})
	require.NoError(t, err)
	assert.Equal(t, PlayStatePlaying, s2.DeckA.PlayState)
	assert.Equal(t, QueueItemPlayingA, s2.Queue[0].Status)

	t5 := t0.Add(5000 * time.Millisecond)
	s3, _, err := apply(s2, &event{Type: EventDeckPause, ClientID: "host", ServerTs: t5, DeckPause: &DeckPausePayload{DeckID: DeckA}})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, s3.DeckA.PlayheadSec, 0.05)
	assert.Equal(t, PlayStatePaused, s3.DeckA.PlayState)
	assert.Equal(t, uint64(0), s3.DeckA.EpochSeq)
	assert.Equal(t, QueueItemLoadedA, s3.Queue[0].Status)
}

func TestApply_DeckLoadFinalizesDisplacedItem(t *testing.T) {
	s := freshState()
	s.Queue = []QueueItem{
		{ID: "q1", TrackID: "t1", DurationSec: 120, Status: QueueItemQueued},
		{ID: "q2", TrackID: "t2", DurationSec: 90, Status: QueueItemQueued},
	}

	t0 := time.Now()
	s1, _, err := apply(s, &event{Type: EventDeckLoad, ClientID: "host", ServerTs: t0,
		DeckLoad: &DeckLoadPayload{DeckID: DeckA, TrackID: "t1", QueueItemID: "q1"}})
	require.NoError(t, err)
	assert.Equal(t, QueueItemLoadedA, s1.Queue[0].Status)

	// loading q2 over the still-merely-loaded q1 finalizes q1 back to queued
	s2, _, err := apply(s1, &event{Type: EventDeckLoad, ClientID: "host", ServerTs: t0,
		DeckLoad: &DeckLoadPayload{DeckID: DeckA, TrackID: "t2", QueueItemID: "q2"}})
	require.NoError(t, err)
	assert.Equal(t, QueueItemQueued, s2.Queue[0].Status)
	assert.Equal(t, QueueItemLoadedA, s2.Queue[1].Status)

	// q1 is no longer loaded/playing anywhere, so it is removable again
	assert.NoError(t, validateQueueItemRemovable(&s2.Queue[0]))

	s3, _, err := apply(s2, &event{Type: EventDeckPlay, ClientID: "host", ServerTs: t0, DeckPlay: &DeckPlayPayload{DeckID: DeckA}})
	require.NoError(t, err)
	assert.Equal(t, QueueItemPlayingA, s3.Queue[1].Status)

	// loading q1 over the now-playing q2 finalizes q2 to played, not queued
	s4, _, err := apply(s3, &event{Type: EventDeckLoad, ClientID: "host", ServerTs: t0,
		DeckLoad: &DeckLoadPayload{DeckID: DeckA, TrackID: "t1", QueueItemID: "q1"}})
	require.NoError(t, err)
	assert.Equal(t, QueueItemPlayed, s4.Queue[1].Status)
	assert.Equal(t, QueueItemLoadedA, s4.Queue[0].Status)
}

func TestApply_MixerSet(t *testing.T) {
	s := freshState()
	next, payload, err := apply(s, &event{Type: EventMixerSet, ClientID: "host", ServerTs: time.Now(),
		MixerSet: &MixerSetPayload{ControlID: "crossfader", Value: 0.7}})
	require.NoError(t, err)
	assert.Equal(t, 0.7, next.Mixer.Crossfader)
	var decoded MixerSetPayload
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "crossfader", decoded.ControlID)
}

func TestInterpolatePlayhead_ClampsAtDuration(t *testing.T) {
	d := newDeck(DeckA)
	d.DurationSec = 10
	d.PlayState = PlayStatePlaying
	d.PlaybackRate = 1.0
	d.EpochStartPlayheadSec = 0
	d.EpochStartTimeMs = time.Now().Add(-20 * time.Second).UnixMilli()

	pos := interpolatePlayhead(&d, time.Now())
	assert.Equal(t, 10.0, pos)
}
