package room

import (
	"math"
	"time"
)

// hostOnlyActions is the configurable set of event types restricted to
// the host. Everything else defaults to permitted for any member.
var hostOnlyActions = map[EventType]struct{}{}

func isHostOnly(t EventType) bool {
	_, ok := hostOnlyActions[t]
	return ok
}

// controlOwnershipTTL is how long a lease survives without a move
// before it can be preempted by ownership-expiry checks. Set from
// config at engine construction; defaults to the spec's 2000ms.
var controlOwnershipTTL = 2000 * time.Millisecond

// validateMember checks that clientID is a current member of state.
func validateMember(state *State, clientID string) error {
	if state.MemberByClientID(clientID) == nil {
		return newValidationError(ErrNotInRoom, "client is not a member of this room")
	}
	return nil
}

// validateHostOnly rejects t for non-hosts when t is host-restricted.
func validateHostOnly(state *State, clientID string, t EventType) error {
	if !isHostOnly(t) {
		return nil
	}
	m := state.MemberByClientID(clientID)
	if m == nil || !m.IsHost {
		return newValidationError(ErrNotHost, "this action is restricted to the room host")
	}
	return nil
}

func validateFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateCursor(p CursorMovePayload) error {
	if !validateFinite(p.X) || !validateFinite(p.Y) {
		return newValidationError(ErrInvalidCursorPosition, "cursor position must be finite")
	}
	if p.X < 0 || p.X > maxCursorCoord || p.Y < 0 || p.Y > maxCursorCoord {
		return newValidationError(ErrInvalidCursorPosition, "cursor position out of bounds")
	}
	return nil
}

func validateGrabbableControlID(controlID string) error {
	if !isGrabbableControl(controlID) {
		return newValidationError(ErrInvalidControlID, "unknown controlId")
	}
	return nil
}

func validateMixerSet(p MixerSetPayload) error {
	bounds, ok := settableControls[p.ControlID]
	if !ok {
		return newValidationError(ErrInvalidControlID, "unknown or non-settable controlId")
	}
	if !validateFinite(p.Value) {
		return newValidationError(ErrValueOutOfBounds, "value must be finite")
	}
	if p.Value < bounds.min || p.Value > bounds.max {
		return newValidationError(ErrValueOutOfBounds, "value outside allowed range")
	}
	return nil
}

// validateOwnership enforces §4.4's contention policy: MIXER_SET on a
// controlId with an active owner is accepted only if sender is the
// owner, or the owner's lease has expired. This is the "strict"
// default policy; a permissive mode would simply never reach the
// CONTESTED_CONTROL branch for a stale owner, which is exactly what
// the TTL check below already does.
func validateOwnership(state *State, controlID, clientID string, now time.Time) error {
	owner, ok := state.ControlOwners[controlID]
	if !ok {
		return nil
	}
	if owner.ClientID == clientID {
		return nil
	}
	if now.Sub(owner.LastMovedAt) >= controlOwnershipTTL {
		return nil
	}
	return newValidationError(ErrContestedControl, "control is owned by another client")
}

func validateDeckID(id DeckID) error {
	if id != DeckA && id != DeckB {
		return newValidationError(ErrDeckNotFound, "unknown deckId")
	}
	return nil
}

func validateDeckLoaded(state *State, id DeckID) error {
	d := state.deck(id)
	if d == nil || d.LoadedTrackID == "" {
		return newValidationError(ErrDeckNotFound, "no track loaded on this deck")
	}
	return nil
}

func validateSeekPosition(positionSec, durationSec float64, durationKnown bool) error {
	if !validateFinite(positionSec) || positionSec < 0 {
		return newValidationError(ErrInvalidSeekPosition, "seek position must be finite and non-negative")
	}
	if durationKnown && positionSec > durationSec {
		return newValidationError(ErrInvalidSeekPosition, "seek position beyond track duration")
	}
	return nil
}

func validateTempo(rate float64) error {
	if !validateFinite(rate) || rate < minPlaybackRate || rate > maxPlaybackRate {
		return newValidationError(ErrValueOutOfBounds, "playbackRate out of range")
	}
	return nil
}

// validateQueueInsertIndex allows [0, len].
func validateQueueInsertIndex(idx, length int) error {
	if idx < 0 || idx > length {
		return newValidationError(ErrInvalidQueueIndex, "insertAt out of range")
	}
	return nil
}

// validateQueueReorderIndex allows [0, len-1].
func validateQueueReorderIndex(idx, length int) error {
	if idx < 0 || idx >= length {
		return newValidationError(ErrInvalidQueueIndex, "newIndex out of range")
	}
	return nil
}

func findQueueItem(state *State, queueItemID string) (*QueueItem, error) {
	idx := state.queueIndex(queueItemID)
	if idx < 0 {
		return nil, newValidationError(ErrQueueItemNotFound, "queue item not found")
	}
	return &state.Queue[idx], nil
}

func validateQueueItemRemovable(item *QueueItem) error {
	switch item.Status {
	case QueueItemLoadedA, QueueItemLoadedB, QueueItemPlayingA, QueueItemPlayingB:
		return newValidationError(ErrCannotRemoveLoaded, "item is loaded or playing on a deck")
	}
	return nil
}
