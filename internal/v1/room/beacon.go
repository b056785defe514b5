package room

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/djroom/engine/internal/v1/metrics"
)

// startBeacon launches the per-room 250ms (default) tick that
// publishes authoritative deck epochs. It self-cancels when the
// room's context is cancelled (Shutdown, or the owning store tearing
// the room down).
func (r *Room) startBeacon(interval time.Duration) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.tickBeacon()
			}
		}
	}()
}

func (r *Room) tickBeacon() {
	start := time.Now()
	defer func() {
		metrics.BeaconTickDuration.Observe(time.Since(start).Seconds())
	}()

	r.mu.Lock()
	now := time.Now()
	advanceEpochSeq(&r.state.DeckA, now)
	advanceEpochSeq(&r.state.DeckB, now)

	tick := BeaconTick{Type: EventBeaconTick, RoomID: r.state.RoomID}
	tick.Payload.ServerTs = now.UnixMilli()
	tick.Payload.Version = r.state.Version
	tick.Payload.DeckA = beaconPayload(&r.state.DeckA, now)
	tick.Payload.DeckB = beaconPayload(&r.state.DeckB, now)
	transport := r.transport
	roomID := r.state.RoomID
	r.mu.Unlock()

	if transport == nil {
		return
	}
	data, err := json.Marshal(tick)
	if err != nil {
		slog.Error("room: failed to marshal beacon tick", "room", roomID, "error", err)
		return
	}
	transport.Broadcast(roomID, data)
}

// advanceEpochSeq increments a playing deck's epochSeq once per tick;
// stopped/paused/cued decks don't accumulate ticks.
func advanceEpochSeq(d *DeckState, now time.Time) {
	if d.PlayState == PlayStatePlaying {
		d.EpochSeq++
	}
}

func beaconPayload(d *DeckState, now time.Time) BeaconDeckPayload {
	return BeaconDeckPayload{
		DeckID:       d.DeckID,
		EpochID:      d.EpochID,
		EpochSeq:     d.EpochSeq,
		ServerTs:     now.UnixMilli(),
		PlayheadSec:  interpolatePlayhead(d, now),
		PlaybackRate: d.PlaybackRate,
		PlayState:    d.PlayState,
		DetectedBpm:  d.DetectedBpm,
	}
}
