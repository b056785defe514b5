package room

import "math"

// controlBounds describes a mixer-settable control's value range.
type controlBounds struct {
	min, max float64
}

// settableControls maps a MIXER_SET-eligible controlId to its bounds
// and the function that applies a clamped value to mixer state.
var settableControls = map[string]controlBounds{
	"crossfader":        {0, 1},
	"masterVolume":      {0, 1},
	"channelA.fader":    {0, 1},
	"channelA.gain":     {-1, 1},
	"channelA.eq.low":   {-1, 1},
	"channelA.eq.mid":   {-1, 1},
	"channelA.eq.high":  {-1, 1},
	"channelA.filter":   {0, 1},
	"channelB.fader":    {0, 1},
	"channelB.gain":     {-1, 1},
	"channelB.eq.low":   {-1, 1},
	"channelB.eq.mid":   {-1, 1},
	"channelB.eq.high":  {-1, 1},
	"channelB.filter":   {0, 1},
	"fx.wetDry":         {0, 1},
	"fx.param":          {0, 1},
}

// grabbableControls is the full control-id enumeration eligible for
// CONTROL_GRAB/CONTROL_RELEASE — a superset of settableControls that
// also includes the per-deck jog wheel and tempo knob, whose actual
// value changes ride in on DECK_SEEK/DECK_TEMPO_SET rather than
// MIXER_SET.
var grabbableControls = buildGrabbableSet()

func buildGrabbableSet() map[string]struct{} {
	set := make(map[string]struct{}, len(settableControls)+4)
	for id := range settableControls {
		set[id] = struct{}{}
	}
	set["deckA.jog"] = struct{}{}
	set["deckA.tempo"] = struct{}{}
	set["deckB.jog"] = struct{}{}
	set["deckB.tempo"] = struct{}{}
	return set
}

func isGrabbableControl(controlID string) bool {
	_, ok := grabbableControls[controlID]
	return ok
}

func clamp(v, min, max float64) float64 {
	if math.IsNaN(v) {
		return min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// applyMixerSet clamps value to the control's bounds and writes it into
// the mixer field addressed by controlID. Caller has already validated
// that controlID is a member of settableControls.
func applyMixerSet(m *MixerState, controlID string, value float64) {
	b := settableControls[controlID]
	v := clamp(value, b.min, b.max)

	switch controlID {
	case "crossfader":
		m.Crossfader = v
	case "masterVolume":
		m.MasterVolume = v
	case "channelA.fader":
		m.ChannelA.Fader = v
	case "channelA.gain":
		m.ChannelA.Gain = v
	case "channelA.eq.low":
		m.ChannelA.EQLow = v
	case "channelA.eq.mid":
		m.ChannelA.EQMid = v
	case "channelA.eq.high":
		m.ChannelA.EQHigh = v
	case "channelA.filter":
		m.ChannelA.Filter = v
	case "channelB.fader":
		m.ChannelB.Fader = v
	case "channelB.gain":
		m.ChannelB.Gain = v
	case "channelB.eq.low":
		m.ChannelB.EQLow = v
	case "channelB.eq.mid":
		m.ChannelB.EQMid = v
	case "channelB.eq.high":
		m.ChannelB.EQHigh = v
	case "channelB.filter":
		m.ChannelB.Filter = v
	case "fx.wetDry":
		m.FX.WetDry = v
	case "fx.param":
		m.FX.Param = v
	}
}

const (
	minPlaybackRate = 0.5
	maxPlaybackRate = 1.5
	maxCursorCoord  = 10000.0
)
