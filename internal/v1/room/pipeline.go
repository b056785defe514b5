package room

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/djroom/engine/internal/v1/metrics"
	"github.com/djroom/engine/internal/v1/ratelimit"
)

// RateLimiter is the narrow slice of ratelimit.Limiter the pipeline
// needs, declared locally so tests can supply a fake.
type RateLimiter interface {
	CheckAndRecord(ctx context.Context, clientID string, bucket ratelimit.Bucket) bool
}

// bucketFor maps a mutating event type to its rate-limit bucket. The
// zero value means "not rate-limited here" — MIXER_SET/FX_*/grab-
// release are gated by ownership and throttle instead, per §4.3.
func bucketFor(t EventType) (ratelimit.Bucket, bool) {
	switch t {
	case EventQueueAdd, EventQueueRemove, EventQueueReorder, EventQueueEdit:
		return ratelimit.BucketQueueMutation, true
	case EventDeckLoad, EventDeckPlay, EventDeckPause, EventDeckCue, EventDeckTempoSet:
		return ratelimit.BucketDeckAction, true
	case EventDeckSeek:
		return ratelimit.BucketDeckSeek, true
	default:
		return "", false
	}
}

// HandleInbound decodes a raw client message and drives it through the
// pipeline: membership -> idempotency -> rate-limit -> host-only
// authorize -> decode/validate -> apply -> ack + broadcast ->
// persistence hint. resolvedClientID comes
// from the transport's connection->(room,client) resolution, never
// from the payload, so it is authoritative for the membership check.
func (r *Room) HandleInbound(ctx context.Context, resolvedClientID string, raw []byte) {
	var env InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("room: failed to parse inbound envelope", "clientId", resolvedClientID, "error", err)
		return
	}

	switch env.Type {
	case EventCursorMove:
		r.handleCursorMove(resolvedClientID, env)
		return
	case EventTimePing:
		r.handleTimePing(resolvedClientID, env)
		return
	default:
		r.handleMutation(ctx, resolvedClientID, env)
	}
}

func (r *Room) handleMutation(ctx context.Context, resolvedClientID string, env InboundEnvelope) {
	start := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	status := "rejected"
	defer func() {
		metrics.EventsTotal.WithLabelValues(string(env.Type), status).Inc()
		metrics.EventProcessingDuration.WithLabelValues(string(env.Type)).Observe(time.Since(start).Seconds())
	}()

	if env.RoomID != "" && env.RoomID != r.state.RoomID {
		r.reject(resolvedClientID, env, ErrRoomMismatch, "roomId does not match this connection")
		return
	}
	if env.ClientID != "" && env.ClientID != resolvedClientID {
		r.reject(resolvedClientID, env, ErrClientMismatch, "clientId does not match this connection")
		return
	}
	if err := validateMember(r.state, resolvedClientID); err != nil {
		r.reject(resolvedClientID, env, err.(*ValidationError).Code, err.Error())
		return
	}

	if r.idem.IsDuplicate(resolvedClientID, env.ClientSeq, env.ClientEventID) {
		metrics.IdempotencyDuplicates.WithLabelValues(string(env.Type)).Inc()
		originalID, _ := r.idem.OriginalEventID(resolvedClientID, env.ClientSeq)
		if originalID == "" {
			originalID = env.ClientEventID
		}
		r.sendAck(resolvedClientID, Ack{Type: EventAck, ClientSeq: env.ClientSeq, EventID: originalID, Accepted: true})
		status = "duplicate"
		return
	}

	if bucket, limited := bucketFor(env.Type); limited && r.rateLimiter != nil {
		if !r.rateLimiter.CheckAndRecord(ctx, resolvedClientID, bucket) {
			r.reject(resolvedClientID, env, ErrRateLimited, "rate limit exceeded")
			return
		}
	}

	if err := validateHostOnly(r.state, resolvedClientID, env.Type); err != nil {
		ve := err.(*ValidationError)
		r.reject(resolvedClientID, env, ve.Code, ve.Message)
		return
	}

	now := time.Now()
	ev, verr := decodeAndValidate(ctx, r.state, resolvedClientID, now, r.catalog, env)
	if verr != nil {
		r.reject(resolvedClientID, env, verr.Code, verr.Message)
		return
	}

	next, payload, err := apply(r.state, ev)
	if err != nil {
		slog.Error("room: apply failed", "room", r.state.RoomID, "type", env.Type, "error", err)
		r.reject(resolvedClientID, env, ErrInvalidPayload, "internal error applying mutation")
		return
	}
	r.state = next
	metrics.RoomVersion.WithLabelValues(r.state.RoomID).Set(float64(r.state.Version))

	eventID := env.ClientEventID
	if eventID == "" {
		eventID = newID()
	}
	r.idem.Record(resolvedClientID, env.ClientSeq, eventID, now)

	r.sendAck(resolvedClientID, Ack{Type: EventAck, ClientSeq: env.ClientSeq, EventID: eventID, Accepted: true})
	r.broadcastMutation(MutationBroadcast{
		Type:      env.Type,
		RoomID:    r.state.RoomID,
		ClientID:  resolvedClientID,
		ClientSeq: env.ClientSeq,
		EventID:   eventID,
		ServerTs:  now.UnixMilli(),
		Version:   r.state.Version,
		Payload:   payload,
	})
	status = "accepted"
	r.hintPersistence()
}

func (r *Room) reject(clientID string, env InboundEnvelope, code ErrorCode, message string) {
	slog.Warn("room: rejected event", "eventType", env.Type, "clientId", clientID, "roomId", env.RoomID, "code", code)
	eventID := env.ClientEventID
	if eventID == "" {
		eventID = newID()
	}
	r.sendAck(clientID, Ack{
		Type:      EventAck,
		ClientSeq: env.ClientSeq,
		EventID:   eventID,
		Accepted:  false,
		Error:     string(code),
	})
}

func (r *Room) sendAck(clientID string, ack Ack) {
	if r.transport == nil {
		return
	}
	data, err := json.Marshal(ack)
	if err != nil {
		slog.Error("room: failed to marshal ack", "error", err)
		return
	}
	r.transport.Send(clientID, data)
}

func (r *Room) broadcastMutation(m MutationBroadcast) {
	if r.transport == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		slog.Error("room: failed to marshal broadcast", "error", err)
		return
	}
	// Sender is included per §4.6 so it can reconcile optimistic state.
	r.transport.Broadcast(r.state.RoomID, data)
}

// decodeAndValidate builds the internal event representation from the
// envelope's raw payload, running every bounds/authorization check
// that apply() assumes has already passed. catalog may be nil, in
// which case QUEUE_ADD enrichment is skipped and the client-supplied
// title/durationSec are used as-is.
func decodeAndValidate(ctx context.Context, state *State, clientID string, now time.Time, catalog TrackCatalog, env InboundEnvelope) (*event, *ValidationError) {
	ev := &event{Type: env.Type, ClientID: clientID, ServerTs: now}

	switch env.Type {
	case EventControlGrab:
		var p ControlGrabPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if err := validateGrabbableControlID(p.ControlID); err != nil {
			return nil, err.(*ValidationError)
		}
		ev.Grab = &p

	case EventControlRelease:
		var p ControlReleasePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if err := validateGrabbableControlID(p.ControlID); err != nil {
			return nil, err.(*ValidationError)
		}
		ev.Release = &p

	case EventMixerSet:
		var p MixerSetPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if err := validateMixerSet(p); err != nil {
			return nil, err.(*ValidationError)
		}
		if err := validateOwnership(state, p.ControlID, clientID, now); err != nil {
			return nil, err.(*ValidationError)
		}
		ev.MixerSet = &p

	case EventFXSet:
		var p FXSetPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if p.Param != "wetDry" && p.Param != "param" {
			return nil, newValidationError(ErrInvalidControlID, "unknown fx param")
		}
		if !validateFinite(p.Value) || p.Value < 0 || p.Value > 1 {
			return nil, newValidationError(ErrValueOutOfBounds, "fx value must be in [0,1]")
		}
		ev.FXSet = &p

	case EventFXToggle:
		var p FXTogglePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		ev.FXToggle = &p

	case EventDeckLoad:
		var p DeckLoadPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if err := validateDeckID(p.DeckID); err != nil {
			return nil, err.(*ValidationError)
		}
		if _, err := findQueueItem(state, p.QueueItemID); err != nil {
			return nil, err.(*ValidationError)
		}
		ev.DeckLoad = &p

	case EventDeckPlay:
		var p DeckPlayPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if err := validateDeckID(p.DeckID); err != nil {
			return nil, err.(*ValidationError)
		}
		if err := validateDeckLoaded(state, p.DeckID); err != nil {
			return nil, err.(*ValidationError)
		}
		ev.DeckPlay = &p

	case EventDeckPause:
		var p DeckPausePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if err := validateDeckID(p.DeckID); err != nil {
			return nil, err.(*ValidationError)
		}
		ev.DeckPause = &p

	case EventDeckCue:
		var p DeckCuePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if err := validateDeckID(p.DeckID); err != nil {
			return nil, err.(*ValidationError)
		}
		if p.CuePointSec != nil {
			d := state.deck(p.DeckID)
			if err := validateSeekPosition(*p.CuePointSec, d.DurationSec, d.DurationSec > 0); err != nil {
				return nil, err.(*ValidationError)
			}
		}
		ev.DeckCue = &p

	case EventDeckSeek:
		var p DeckSeekPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if err := validateDeckID(p.DeckID); err != nil {
			return nil, err.(*ValidationError)
		}
		d := state.deck(p.DeckID)
		if err := validateSeekPosition(p.PositionSec, d.DurationSec, d.DurationSec > 0); err != nil {
			return nil, err.(*ValidationError)
		}
		ev.DeckSeek = &p

	case EventDeckTempoSet:
		var p DeckTempoSetPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if err := validateDeckID(p.DeckID); err != nil {
			return nil, err.(*ValidationError)
		}
		if err := validateTempo(p.PlaybackRate); err != nil {
			return nil, err.(*ValidationError)
		}
		ev.DeckTempo = &p

	case EventQueueAdd:
		var p QueueAddPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if p.InsertAt != nil {
			if err := validateQueueInsertIndex(*p.InsertAt, len(state.Queue)); err != nil {
				return nil, err.(*ValidationError)
			}
		}
		if catalog != nil && (p.Title == "" || p.DurationSec <= 0) {
			if title, durationSec, ok := catalog.Lookup(ctx, p.TrackID); ok {
				if p.Title == "" {
					p.Title = title
				}
				if p.DurationSec <= 0 {
					p.DurationSec = durationSec
				}
			}
		}
		ev.QueueAdd = &p

	case EventQueueRemove:
		var p QueueRemovePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		item, err := findQueueItem(state, p.QueueItemID)
		if err != nil {
			return nil, err.(*ValidationError)
		}
		if err := validateQueueItemRemovable(item); err != nil {
			return nil, err.(*ValidationError)
		}
		ev.QueueRem = &p

	case EventQueueReorder:
		var p QueueReorderPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if _, err := findQueueItem(state, p.QueueItemID); err != nil {
			return nil, err.(*ValidationError)
		}
		if err := validateQueueReorderIndex(p.NewIndex, len(state.Queue)); err != nil {
			return nil, err.(*ValidationError)
		}
		ev.QueueReo = &p

	case EventQueueEdit:
		var p QueueEditPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, newValidationError(ErrInvalidPayload, "malformed payload")
		}
		if _, err := findQueueItem(state, p.QueueItemID); err != nil {
			return nil, err.(*ValidationError)
		}
		ev.QueueEdit = &p

	default:
		return nil, newValidationError(ErrInvalidPayload, "unknown event type")
	}

	return ev, nil
}
