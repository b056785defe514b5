package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/djroom/engine/internal/v1/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent map[string][][]byte
	bcast []broadcastCall
}

type broadcastCall struct {
	roomID  string
	data    []byte
	exclude []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[string][][]byte)}
}

func (f *fakeTransport) Send(clientID string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[clientID] = append(f.sent[clientID], data)
}

func (f *fakeTransport) Broadcast(roomID string, data []byte, exclude ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bcast = append(f.bcast, broadcastCall{roomID: roomID, data: data, exclude: exclude})
}

func (f *fakeTransport) acksFor(clientID string) []Ack {
	f.mu.Lock()
	defer f.mu.Unlock()
	var acks []Ack
	for _, raw := range f.sent[clientID] {
		var a Ack
		if json.Unmarshal(raw, &a) == nil && a.Type == EventAck {
			acks = append(acks, a)
		}
	}
	return acks
}

type allowAllLimiter struct{ allow bool }

func (l *allowAllLimiter) CheckAndRecord(ctx context.Context, clientID string, bucket ratelimit.Bucket) bool {
	return l.allow
}

func newTestRoom(transport Transport, limiter RateLimiter) (*Room, string) {
	r := NewRoom("room-1", "ABC234", "Alice", "host", transport, nil, limiter, nil, 0, nil, time.Hour, time.Hour, time.Millisecond)
	return r, "host"
}

func envelope(t EventType, clientID string, seq uint64, payload any) []byte {
	raw, _ := json.Marshal(payload)
	env := InboundEnvelope{Type: t, RoomID: "room-1", ClientID: clientID, ClientSeq: seq, Payload: raw}
	data, _ := json.Marshal(env)
	return data
}

func TestHandleInbound_MixerSetAccepted(t *testing.T) {
	transport := newFakeTransport()
	r, host := newTestRoom(transport, &allowAllLimiter{allow: true})
	defer r.Shutdown(context.Background())

	r.HandleInbound(context.Background(), host, envelope(EventMixerSet, host, 1, MixerSetPayload{ControlID: "crossfader", Value: 0.7}))

	acks := transport.acksFor(host)
	require.Len(t, acks, 1)
	assert.True(t, acks[0].Accepted)
	assert.Equal(t, uint64(1), r.Snapshot().Version)
}

func TestHandleInbound_DuplicateReplayNoNewBroadcast(t *testing.T) {
	transport := newFakeTransport()
	r, host := newTestRoom(transport, &allowAllLimiter{allow: true})
	defer r.Shutdown(context.Background())

	msg := envelope(EventMixerSet, host, 5, MixerSetPayload{ControlID: "crossfader", Value: 0.7})
	r.HandleInbound(context.Background(), host, msg)
	versionAfterFirst := r.Snapshot().Version

	broadcastsBefore := len(transport.bcast)
	r.HandleInbound(context.Background(), host, msg)

	assert.Equal(t, versionAfterFirst, r.Snapshot().Version)
	assert.Equal(t, broadcastsBefore, len(transport.bcast))

	acks := transport.acksFor(host)
	require.Len(t, acks, 2)
	assert.Equal(t, acks[0].EventID, acks[1].EventID)
	assert.True(t, acks[1].Accepted)
}

func TestHandleInbound_RemoveLoadedItemRejected(t *testing.T) {
	transport := newFakeTransport()
	r, host := newTestRoom(transport, &allowAllLimiter{allow: true})
	defer r.Shutdown(context.Background())

	r.mu.Lock()
	r.state.Queue = []QueueItem{{ID: "q1", TrackID: "t1", DurationSec: 120, Status: QueueItemQueued}}
	r.mu.Unlock()

	r.HandleInbound(context.Background(), host, envelope(EventDeckLoad, host, 1, DeckLoadPayload{DeckID: DeckA, TrackID: "t1", QueueItemID: "q1"}))
	r.HandleInbound(context.Background(), host, envelope(EventQueueRemove, host, 2, QueueRemovePayload{QueueItemID: "q1"}))

	acks := transport.acksFor(host)
	require.Len(t, acks, 2)
	assert.False(t, acks[1].Accepted)
	assert.Equal(t, string(ErrCannotRemoveLoaded), acks[1].Error)
	assert.Len(t, r.Snapshot().Queue, 1)
}

func TestHandleInbound_RateLimited(t *testing.T) {
	transport := newFakeTransport()
	r, host := newTestRoom(transport, &allowAllLimiter{allow: false})
	defer r.Shutdown(context.Background())

	r.HandleInbound(context.Background(), host, envelope(EventQueueAdd, host, 1, QueueAddPayload{TrackID: "t1", Title: "A", DurationSec: 10}))

	acks := transport.acksFor(host)
	require.Len(t, acks, 1)
	assert.False(t, acks[0].Accepted)
	assert.Equal(t, string(ErrRateLimited), acks[0].Error)
}

func TestHandleInbound_CursorMoveNeverAcksNeverEchoesSender(t *testing.T) {
	transport := newFakeTransport()
	r, host := newTestRoom(transport, &allowAllLimiter{allow: true})
	defer r.Shutdown(context.Background())

	bob := r.Join("Bob")

	r.HandleInbound(context.Background(), host, envelope(EventCursorMove, host, 1, CursorMovePayload{X: 0.5, Y: 0.25}))

	assert.Empty(t, transport.acksFor(host))
	require.NotEmpty(t, transport.bcast)
	last := transport.bcast[len(transport.bcast)-1]
	assert.Contains(t, last.exclude, host)
	assert.Equal(t, uint64(1), r.Snapshot().Version) // join bumped version; cursor must not have
	_ = bob
}

func TestHandleInbound_ClientMismatchRejected(t *testing.T) {
	transport := newFakeTransport()
	r, host := newTestRoom(transport, &allowAllLimiter{allow: true})
	defer r.Shutdown(context.Background())

	raw, _ := json.Marshal(MixerSetPayload{ControlID: "crossfader", Value: 0.5})
	env := InboundEnvelope{Type: EventMixerSet, RoomID: "room-1", ClientID: "someone-else", ClientSeq: 1, Payload: raw}
	data, _ := json.Marshal(env)

	r.HandleInbound(context.Background(), host, data)

	acks := transport.acksFor(host)
	require.Len(t, acks, 1)
	assert.Equal(t, string(ErrClientMismatch), acks[0].Error)
}
