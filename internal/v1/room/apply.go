package room

import (
	"encoding/json"
	"fmt"
	"time"
)

// event is the internal, already-decoded representation of an accepted
// mutation. The pipeline builds one of these after validation succeeds
// and hands it to apply.
type event struct {
	Type      EventType
	ClientID  string
	ServerTs  time.Time
	EventID   string
	Cursor    *CursorMovePayload
	Grab      *ControlGrabPayload
	Release   *ControlReleasePayload
	MixerSet  *MixerSetPayload
	FXSet     *FXSetPayload
	FXToggle  *FXTogglePayload
	DeckLoad  *DeckLoadPayload
	DeckPlay  *DeckPlayPayload
	DeckPause *DeckPausePayload
	DeckCue   *DeckCuePayload
	DeckSeek  *DeckSeekPayload
	DeckTempo *DeckTempoSetPayload
	QueueAdd  *QueueAddPayload
	QueueRem  *QueueRemovePayload
	QueueReo  *QueueReorderPayload
	QueueEdit *QueueEditPayload
}

// apply is the sole state-mutating function in the engine. It never
// mutates state in place — it clones first, so the previous State
// remains valid for anything still reading it (a snapshot in flight, a
// beacon tick). The only side effect is the monotonic version bump.
func apply(state *State, e *event) (*State, json.RawMessage, error) {
	next := state.Clone()
	serverTs := e.ServerTs

	var broadcastPayload any

	switch e.Type {
	case EventCursorMove:
		// CURSOR_MOVE never bumps version; callers must not broadcast
		// this through the normal mutation path.
		m := next.MemberByClientID(e.ClientID)
		if m == nil {
			return nil, nil, newValidationError(ErrNotInRoom, "client is not a member of this room")
		}
		m.Cursor = &Cursor{X: e.Cursor.X, Y: e.Cursor.Y, LastUpdated: serverTs}
		return next, nil, nil

	case EventControlGrab:
		next.ControlOwners[e.Grab.ControlID] = ControlOwnership{
			ClientID:    e.ClientID,
			AcquiredAt:  serverTs,
			LastMovedAt: serverTs,
		}
		broadcastPayload = e.Grab

	case EventControlRelease:
		delete(next.ControlOwners, e.Release.ControlID)
		broadcastPayload = e.Release

	case EventMixerSet:
		applyMixerSet(&next.Mixer, e.MixerSet.ControlID, e.MixerSet.Value)
		if owner, ok := next.ControlOwners[e.MixerSet.ControlID]; ok {
			owner.LastMovedAt = serverTs
			next.ControlOwners[e.MixerSet.ControlID] = owner
		}
		broadcastPayload = e.MixerSet

	case EventFXSet:
		switch e.FXSet.Param {
		case "wetDry":
			next.Mixer.FX.WetDry = clamp(e.FXSet.Value, 0, 1)
		case "param":
			next.Mixer.FX.Param = clamp(e.FXSet.Value, 0, 1)
		}
		broadcastPayload = e.FXSet

	case EventFXToggle:
		next.Mixer.FX.Enabled = e.FXToggle.Enabled
		broadcastPayload = e.FXToggle

	case EventDeckLoad:
		idx := next.queueIndex(e.DeckLoad.QueueItemID)
		item := &next.Queue[idx]
		d := next.deck(e.DeckLoad.DeckID)
		if prevIdx := next.queueIndex(d.LoadedQueueItemID); prevIdx >= 0 {
			if d.PlayState == PlayStatePlaying {
				next.Queue[prevIdx].Status = QueueItemPlayed
			} else {
				next.Queue[prevIdx].Status = QueueItemQueued
			}
		}
		d.LoadedTrackID = e.DeckLoad.TrackID
		d.LoadedQueueItemID = item.ID
		d.DurationSec = item.DurationSec
		d.PlayheadSec = 0
		d.CuePointSec = nil
		d.HotCuePointSec = nil
		d.PlayState = PlayStateStopped
		startNewEpoch(d, serverTs, 0)
		item.Status = loadedStatus(e.DeckLoad.DeckID)
		broadcastPayload = e.DeckLoad

	case EventDeckPlay:
		d := next.deck(e.DeckPlay.DeckID)
		playhead := interpolatePlayhead(d, serverTs)
		d.PlayheadSec = playhead
		d.PlayState = PlayStatePlaying
		startNewEpoch(d, serverTs, playhead)
		if idx := next.queueIndex(d.LoadedQueueItemID); idx >= 0 {
			next.Queue[idx].Status = playingStatus(e.DeckPlay.DeckID)
		}
		broadcastPayload = e.DeckPlay

	case EventDeckPause:
		d := next.deck(e.DeckPause.DeckID)
		playhead := interpolatePlayhead(d, serverTs)
		d.PlayheadSec = playhead
		d.PlayState = PlayStatePaused
		startNewEpoch(d, serverTs, playhead)
		if idx := next.queueIndex(d.LoadedQueueItemID); idx >= 0 {
			next.Queue[idx].Status = loadedStatus(e.DeckPause.DeckID)
		}
		broadcastPayload = e.DeckPause

	case EventDeckCue:
		d := next.deck(e.DeckCue.DeckID)
		if e.DeckCue.CuePointSec != nil {
			v := *e.DeckCue.CuePointSec
			d.CuePointSec = &v
		}
		if d.CuePointSec != nil {
			d.PlayheadSec = *d.CuePointSec
		} else {
			d.PlayheadSec = 0
		}
		d.PlayState = PlayStateCued
		startNewEpoch(d, serverTs, d.PlayheadSec)
		broadcastPayload = e.DeckCue

	case EventDeckSeek:
		d := next.deck(e.DeckSeek.DeckID)
		d.PlayheadSec = e.DeckSeek.PositionSec
		startNewEpoch(d, serverTs, d.PlayheadSec)
		broadcastPayload = e.DeckSeek

	case EventDeckTempoSet:
		d := next.deck(e.DeckTempo.DeckID)
		playhead := interpolatePlayhead(d, serverTs)
		d.PlaybackRate = clamp(e.DeckTempo.PlaybackRate, minPlaybackRate, maxPlaybackRate)
		d.PlayheadSec = playhead
		startNewEpoch(d, serverTs, playhead)
		broadcastPayload = e.DeckTempo

	case EventQueueAdd:
		id := newID()
		insertAt := len(next.Queue)
		if e.QueueAdd.InsertAt != nil {
			insertAt = clampInt(*e.QueueAdd.InsertAt, 0, len(next.Queue))
		}
		item := QueueItem{
			ID:          id,
			TrackID:     e.QueueAdd.TrackID,
			Title:       e.QueueAdd.Title,
			DurationSec: e.QueueAdd.DurationSec,
			AddedBy:     e.ClientID,
			AddedAt:     serverTs,
			Status:      QueueItemQueued,
		}
		next.Queue = insertQueueItem(next.Queue, insertAt, item)
		broadcastPayload = QueueAddBroadcastPayload{
			TrackID:     item.TrackID,
			Title:       item.Title,
			DurationSec: item.DurationSec,
			QueueItemID: id,
		}

	case EventQueueRemove:
		idx := next.queueIndex(e.QueueRem.QueueItemID)
		next.Queue = append(next.Queue[:idx], next.Queue[idx+1:]...)
		broadcastPayload = e.QueueRem

	case EventQueueReorder:
		idx := next.queueIndex(e.QueueReo.QueueItemID)
		item := next.Queue[idx]
		rest := append(next.Queue[:idx:idx], next.Queue[idx+1:]...)
		newIndex := clampInt(e.QueueReo.NewIndex, 0, len(rest))
		next.Queue = insertQueueItem(rest, newIndex, item)
		broadcastPayload = e.QueueReo

	case EventQueueEdit:
		idx := next.queueIndex(e.QueueEdit.QueueItemID)
		if e.QueueEdit.Updates.Title != nil {
			next.Queue[idx].Title = *e.QueueEdit.Updates.Title
		}
		broadcastPayload = e.QueueEdit

	default:
		return nil, nil, fmt.Errorf("apply: unhandled event type %q", e.Type)
	}

	next.Version = state.Version + 1

	payload, err := json.Marshal(broadcastPayload)
	if err != nil {
		return nil, nil, fmt.Errorf("apply: marshal broadcast payload: %w", err)
	}
	return next, payload, nil
}

func loadedStatus(id DeckID) QueueItemStatus {
	if id == DeckA {
		return QueueItemLoadedA
	}
	return QueueItemLoadedB
}

func playingStatus(id DeckID) QueueItemStatus {
	if id == DeckA {
		return QueueItemPlayingA
	}
	return QueueItemPlayingB
}

// interpolatePlayhead computes the authoritative position of a playing
// deck at serverTs, clamped to [0, durationSec]. For non-playing decks
// this is just PlayheadSec.
func interpolatePlayhead(d *DeckState, serverTs time.Time) float64 {
	if d.PlayState != PlayStatePlaying {
		return d.PlayheadSec
	}
	elapsedSec := float64(serverTs.UnixMilli()-d.EpochStartTimeMs) / 1000.0
	pos := d.EpochStartPlayheadSec + elapsedSec*d.PlaybackRate
	if pos < 0 {
		return 0
	}
	if d.DurationSec > 0 && pos > d.DurationSec {
		return d.DurationSec
	}
	return pos
}

// startNewEpoch begins a fresh epoch at serverTs with the given
// playhead as its starting point. Every mutation to rate, seek, cue,
// pause, or load calls this.
func startNewEpoch(d *DeckState, serverTs time.Time, playheadSec float64) {
	d.EpochID = newEpochID()
	d.EpochSeq = 0
	d.EpochStartTimeMs = serverTs.UnixMilli()
	d.EpochStartPlayheadSec = playheadSec
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func insertQueueItem(q []QueueItem, at int, item QueueItem) []QueueItem {
	out := make([]QueueItem, 0, len(q)+1)
	out = append(out, q[:at]...)
	out = append(out, item)
	out = append(out, q[at:]...)
	return out
}
