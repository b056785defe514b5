package room

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/djroom/engine/internal/v1/idempotency"
	"github.com/djroom/engine/internal/v1/metrics"
)

// colorPalette is cycled through as members join, giving each a
// distinct cursor/avatar color without requiring client input.
var colorPalette = []string{
	"#E53935", "#1E88E5", "#43A047", "#FDD835",
	"#8E24AA", "#FB8C00", "#00ACC1", "#6D4C41",
}

// Room owns one RoomState plus everything scoped to that room: its
// idempotency ledger, its beacon ticker, and the transport/persistence
// collaborators it broadcasts through. All mutating entry points lock
// mu; internal helpers suffixed Locked assume the caller already holds
// it — mirroring the lock-then-call-Locked-helper shape used
// throughout this codebase.
type Room struct {
	mu    sync.Mutex
	state *State
	idem  *idempotency.Store

	transport    Transport
	persistence  persistenceSink
	rateLimiter  RateLimiter
	catalog      TrackCatalog
	persistHints chan *Snapshot

	onEmpty func(roomID string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	gracePeriod    time.Duration
	cursorThrottle time.Duration
	cursorLastSent map[string]time.Time
}

// persistenceSink is the narrow slice of persistence.Sink the room
// package needs; declared locally so this package doesn't import
// persistence's Redis/gobreaker machinery directly.
type persistenceSink interface {
	Snapshot(ctx context.Context, roomID string, state any) error
}

// TrackCatalog is the narrow slice of catalog.Catalog the room package
// needs to enrich a QUEUE_ADD that omits title/durationSec.
type TrackCatalog interface {
	Lookup(ctx context.Context, trackID string) (title string, durationSec float64, ok bool)
}

// NewRoom seeds a fresh RoomState (host member, both decks, default
// mixer) and starts its beacon ticker.
func NewRoom(roomID, roomCode, hostName, hostClientID string, transport Transport, sink persistenceSink, limiter RateLimiter, catalog TrackCatalog, idemCapacity int, onEmpty func(string), beaconInterval, gracePeriod, cursorThrottle time.Duration) *Room {
	now := time.Now()
	state := &State{
		RoomID:    roomID,
		RoomCode:  roomCode,
		Version:   0,
		CreatedAt: now,
		HostID:    hostClientID,
		Members: []Member{{
			ClientID: hostClientID,
			Name:     hostName,
			Color:    colorPalette[0],
			JoinedAt: now,
			IsHost:   true,
		}},
		Queue:         nil,
		DeckA:         newDeck(DeckA),
		DeckB:         newDeck(DeckB),
		Mixer:         defaultMixer(),
		ControlOwners: make(map[string]ControlOwnership),
	}

	r := &Room{
		state:       state,
		idem:        idempotency.NewStore(idemCapacity),
		transport:   transport,
		persistence: sink,
		rateLimiter: limiter,
		catalog:     catalog,
		onEmpty:     onEmpty,
		gracePeriod: gracePeriod,

		cursorThrottle: cursorThrottle,
		cursorLastSent: make(map[string]time.Time),
	}
	if r.cursorThrottle <= 0 {
		r.cursorThrottle = 33 * time.Millisecond
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.startBeacon(beaconInterval)
	if r.persistence != nil {
		r.persistHints = make(chan *Snapshot, persistHintBufferSize)
		r.startPersistenceWorker()
	}
	return r
}

func (r *Room) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.RoomID
}

// Snapshot returns a deep copy of the current state, safe to read or
// serialize without holding any lock.
func (r *Room) Snapshot() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// MemberCount reports the current member count for health/metrics.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.Members)
}

// Join appends a new member and returns its minted clientId.
func (r *Room) Join(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	clientID := newID()
	color := colorPalette[len(r.state.Members)%len(colorPalette)]
	r.state.Members = append(r.state.Members, Member{
		ClientID: clientID,
		Name:     name,
		Color:    color,
		JoinedAt: time.Now(),
	})
	r.state.Version++
	metrics.RoomMembers.WithLabelValues(r.state.RoomID).Set(float64(len(r.state.Members)))
	r.broadcastRoomStateLocked()
	return clientID
}

// Leave removes clientID, migrating host if needed and clearing any
// control ownership and cursor-throttle entry it held. Returns true if
// the room is now empty (caller should schedule destruction after grace).
func (r *Room) Leave(clientID string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, m := range r.state.Members {
		if m.ClientID == clientID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return len(r.state.Members) == 0
	}

	wasHost := r.state.Members[idx].IsHost
	r.state.Members = append(r.state.Members[:idx], r.state.Members[idx+1:]...)

	for controlID, owner := range r.state.ControlOwners {
		if owner.ClientID == clientID {
			delete(r.state.ControlOwners, controlID)
		}
	}
	delete(r.cursorLastSent, clientID)

	if wasHost && len(r.state.Members) > 0 {
		// Earliest-joined remaining member becomes host; Members stays
		// in join order so that's simply the new head of the slice.
		r.state.Members[0].IsHost = true
		r.state.HostID = r.state.Members[0].ClientID
	} else if wasHost {
		r.state.HostID = hostSentinel
	}

	r.state.Version++
	if len(r.state.Members) > 0 {
		metrics.RoomMembers.WithLabelValues(r.state.RoomID).Set(float64(len(r.state.Members)))
		r.broadcastRoomStateLocked()
	} else {
		metrics.RoomMembers.DeleteLabelValues(r.state.RoomID)
	}

	return len(r.state.Members) == 0
}

// UpdateLatency records a client's last one-way latency estimate.
func (r *Room) UpdateLatency(clientID string, ms int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.state.MemberByClientID(clientID); m != nil {
		m.LatencyMs = ms
	}
}

// Shutdown cancels the beacon ticker and waits (bounded by ctx) for
// any in-flight background work (persistence hints) to finish.
func (r *Room) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) broadcastRoomStateLocked() {
	if r.transport == nil {
		return
	}
	type roomStateMessage struct {
		Type    string `json:"type"`
		RoomID  string `json:"roomId"`
		Payload *State `json:"payload"`
	}
	data, err := json.Marshal(roomStateMessage{Type: "ROOM_STATE", RoomID: r.state.RoomID, Payload: r.state})
	if err != nil {
		slog.Error("room: failed to marshal ROOM_STATE", "room", r.state.RoomID, "error", err)
		return
	}
	r.transport.Broadcast(r.state.RoomID, data)
}

// Snapshot is the opaque-to-the-engine persisted shape from §6: the
// room state plus enough idempotency bookkeeping to keep rejecting
// replays across a restart.
type Snapshot struct {
	RoomID      string `json:"roomId"`
	Version     uint64 `json:"version"`
	State       *State `json:"state"`
	Idempotency struct {
		LastSeqByClient map[string]uint64 `json:"lastSeqByClient"`
		RecentEventIDs  []string          `json:"recentEventIds"`
	} `json:"idempotency"`
}

// persistHintBufferSize bounds how many pending snapshots a room will
// queue for its single persistence worker; once it is full, further
// hints are dropped rather than piling up goroutines.
const persistHintBufferSize = 8

// hintPersistence enqueues a snapshot for the room's single background
// persistence worker. It never blocks: a full buffer means the sink is
// falling behind, and the next successful snapshot will carry a higher
// version anyway, so the hint is dropped rather than stalling the
// caller (which holds r.mu).
func (r *Room) hintPersistence() {
	if r.persistence == nil {
		return
	}
	snap := &Snapshot{RoomID: r.state.RoomID, Version: r.state.Version, State: r.state.Clone()}
	snap.Idempotency.LastSeqByClient, snap.Idempotency.RecentEventIDs = r.idem.Export()

	select {
	case r.persistHints <- snap:
	default:
		slog.Warn("room: persistence hint buffer full, dropping snapshot", "room", r.state.RoomID, "version", snap.Version)
	}
}

// startPersistenceWorker runs the single goroutine that drains
// persistHints for this room's lifetime, stopping once r.ctx is
// cancelled (Shutdown) and any already-buffered hints are drained.
func (r *Room) startPersistenceWorker() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case snap, ok := <-r.persistHints:
				if !ok {
					return
				}
				if err := r.persistence.Snapshot(context.Background(), snap.RoomID, snap); err != nil {
					slog.Warn("room: persistence hint failed", "room", snap.RoomID, "error", err)
				}
			case <-r.ctx.Done():
				for {
					select {
					case snap := <-r.persistHints:
						if err := r.persistence.Snapshot(context.Background(), snap.RoomID, snap); err != nil {
							slog.Warn("room: persistence hint failed", "room", snap.RoomID, "error", err)
						}
					default:
						return
					}
				}
			}
		}
	}()
}
