package room

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/djroom/engine/internal/v1/metrics"
)

// connRecord is what a connection id resolves to: which room, and
// which member within it.
type connRecord struct {
	RoomID   string
	ClientID string
}

// Store owns every live Room plus the connection-id -> (roomId,
// clientId) mapping, per §4.1. All mutating operations here are safe
// for concurrent use; the rooms they return serialize their own
// mutations independently.
type Store struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	byCode      map[string]string // roomCode -> roomID
	connections map[string]connRecord
	pendingGC   map[string]*time.Timer

	transport   Transport
	persistence persistenceSink
	rateLimiter RateLimiter
	catalog     TrackCatalog

	beaconInterval time.Duration
	gracePeriod    time.Duration
	cursorThrottle time.Duration
	idemCapacity   int
}

// NewStore builds an empty Store wired to the engine's shared
// collaborators. catalog may be nil (no track-metadata enrichment).
func NewStore(transport Transport, sink persistenceSink, limiter RateLimiter, catalog TrackCatalog, beaconInterval, gracePeriod, cursorThrottle time.Duration, idemCapacity int) *Store {
	return &Store{
		rooms:       make(map[string]*Room),
		byCode:      make(map[string]string),
		connections: make(map[string]connRecord),
		pendingGC:   make(map[string]*time.Timer),

		transport:   transport,
		persistence: sink,
		rateLimiter: limiter,
		catalog:     catalog,

		beaconInterval: beaconInterval,
		gracePeriod:    gracePeriod,
		cursorThrottle: cursorThrottle,
		idemCapacity:   idemCapacity,
	}
}

// SetTransport wires the transport adapter after construction, so a
// Hub that itself needs a *Store to exist can still become that
// Store's Transport.
func (s *Store) SetTransport(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
}

// CreateRoom mints a room id and a unique room code, seeds the host
// member, and records the connection mapping.
func (s *Store) CreateRoom(hostName, connectionID string) (*Room, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID := newID()
	roomCode, err := s.uniqueRoomCodeLocked()
	if err != nil {
		return nil, "", err
	}
	clientID := newID()

	r := NewRoom(roomID, roomCode, hostName, clientID, s.transport, s.persistence, s.rateLimiter, s.catalog, s.idemCapacity, s.scheduleGC, s.beaconInterval, s.gracePeriod, s.cursorThrottle)

	s.rooms[roomID] = r
	s.byCode[roomCode] = roomID
	s.connections[connectionID] = connRecord{RoomID: roomID, ClientID: clientID}

	metrics.ActiveRooms.Inc()
	metrics.RoomMembers.WithLabelValues(roomID).Set(1)
	return r, clientID, nil
}

func (s *Store) uniqueRoomCodeLocked() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := newRoomCode()
		if err != nil {
			return "", err
		}
		if _, taken := s.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", errRoomCodeExhausted
}

// JoinRoom resolves roomCode to a live room and adds a new member.
func (s *Store) JoinRoom(roomCode, name, connectionID string) (*Room, string, error) {
	s.mu.Lock()
	roomID, ok := s.byCode[roomCode]
	if !ok {
		s.mu.Unlock()
		return nil, "", newValidationError(ErrRoomNotFound, "no room with that code")
	}
	r := s.rooms[roomID]
	s.cancelPendingGCLocked(roomID)
	s.mu.Unlock()

	clientID := r.Join(name)

	s.mu.Lock()
	s.connections[connectionID] = connRecord{RoomID: roomID, ClientID: clientID}
	s.mu.Unlock()

	return r, clientID, nil
}

// GetRoom looks up a room by id.
func (s *Store) GetRoom(roomID string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	return r, ok
}

// GetClient resolves a connection id to its (roomId, clientId).
func (s *Store) GetClient(connectionID string) (roomID, clientID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.connections[connectionID]
	return rec.RoomID, rec.ClientID, ok
}

// UpdateLatency forwards to the owning room.
func (s *Store) UpdateLatency(connectionID string, ms int64) {
	roomID, clientID, ok := s.GetClient(connectionID)
	if !ok {
		return
	}
	if r, ok := s.GetRoom(roomID); ok {
		r.UpdateLatency(clientID, ms)
	}
}

// Leave removes the connection's member from its room, clears the
// connection mapping, and schedules the room for destruction if it is
// now empty.
func (s *Store) Leave(connectionID string) {
	s.mu.Lock()
	rec, ok := s.connections[connectionID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.connections, connectionID)
	r, ok := s.rooms[rec.RoomID]
	s.mu.Unlock()
	if !ok {
		return
	}

	empty := r.Leave(rec.ClientID)
	if empty {
		s.scheduleGC(rec.RoomID)
	}
}

// RoomCount and ClientCount back the health handler's readiness
// response.
func (s *Store) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Store) ClientCount() int {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	total := 0
	for _, r := range rooms {
		total += r.MemberCount()
	}
	return total
}

// scheduleGC arms (or re-arms) a destruction timer for roomID. If the
// room is still empty once the grace period elapses it is torn down
// and removed from the registry; a reconnecting member cancels the
// pending timer first via cancelPendingGCLocked.
func (s *Store) scheduleGC(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingGCLocked(roomID)

	timer := time.AfterFunc(s.gracePeriod, func() {
		s.mu.Lock()
		r, ok := s.rooms[roomID]
		if !ok || r.MemberCount() > 0 {
			delete(s.pendingGC, roomID)
			s.mu.Unlock()
			return
		}
		delete(s.rooms, roomID)
		for code, id := range s.byCode {
			if id == roomID {
				delete(s.byCode, code)
				break
			}
		}
		delete(s.pendingGC, roomID)
		s.mu.Unlock()

		metrics.ActiveRooms.Dec()
		metrics.RoomMembers.DeleteLabelValues(roomID)
		metrics.RoomVersion.DeleteLabelValues(roomID)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Shutdown(ctx); err != nil {
			slog.Warn("store: room shutdown did not complete cleanly", "room", roomID, "error", err)
		}
	})
	s.pendingGC[roomID] = timer
}

func (s *Store) cancelPendingGCLocked(roomID string) {
	if timer, ok := s.pendingGC[roomID]; ok {
		timer.Stop()
		delete(s.pendingGC, roomID)
	}
}

// Shutdown tears down every live room, e.g. on process shutdown.
func (s *Store) Shutdown(ctx context.Context) {
	s.mu.Lock()
	for _, timer := range s.pendingGC {
		timer.Stop()
	}
	s.pendingGC = make(map[string]*time.Timer)
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	for _, r := range rooms {
		if err := r.Shutdown(ctx); err != nil {
			slog.Warn("store: shutdown incomplete for room", "error", err)
		}
	}
}

var errRoomCodeExhausted = newValidationError(ErrRoomNotFound, "could not mint a unique room code")
